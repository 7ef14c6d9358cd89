// Copyright © 2023 The ilp-go Authors
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rpc bridges synchronous request/response calls onto the
// asynchronous message channel: a request is sent with a correlation id, and
// the caller blocks until a message with the same id arrives back, or the
// timeout pops.
package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
	"github.com/ilp-go/xrpescrow/pkg/escrow"
)

// MessageSender dispatches one message through the delivery collaborator -
// the engine's on-ledger memo channel by default, but any point-to-point
// channel satisfies it
type MessageSender func(ctx context.Context, msg *escrow.Message) error

type inflightRequest struct {
	id        *fftypes.UUID
	startTime time.Time
	response  chan inflightResponse
}

type inflightResponse struct {
	data fftypes.JSONObject
	err  error
}

// Bridge correlates responses to their originating requests by id
type Bridge struct {
	ctx            context.Context
	ownAddress     string
	defaultTimeout time.Duration
	send           MessageSender

	handlerMux sync.Mutex
	handler    escrow.RequestHandler

	inflightMux sync.Mutex
	inflight    map[fftypes.UUID]*inflightRequest
}

func NewBridge(ctx context.Context, ownAddress string, defaultTimeout time.Duration, send MessageSender) *Bridge {
	return &Bridge{
		ctx:            log.WithLogField(ctx, "role", "rpc-bridge"),
		ownAddress:     ownAddress,
		defaultTimeout: defaultTimeout,
		send:           send,
		inflight:       make(map[fftypes.UUID]*inflightRequest),
	}
}

// SetHandler installs the single handler invoked for inbound requests
func (b *Bridge) SetHandler(handler escrow.RequestHandler) {
	b.handlerMux.Lock()
	b.handler = handler
	b.handlerMux.Unlock()
}

func (b *Bridge) addInflight(id *fftypes.UUID) *inflightRequest {
	req := &inflightRequest{
		id:        id,
		startTime: time.Now(),
		response:  make(chan inflightResponse, 1),
	}
	b.inflightMux.Lock()
	b.inflight[*id] = req
	b.inflightMux.Unlock()
	return req
}

func (b *Bridge) removeInflight(id *fftypes.UUID) {
	b.inflightMux.Lock()
	delete(b.inflight, *id)
	b.inflightMux.Unlock()
}

func (b *Bridge) popInflight(id *fftypes.UUID) *inflightRequest {
	b.inflightMux.Lock()
	req := b.inflight[*id]
	delete(b.inflight, *id)
	b.inflightMux.Unlock()
	return req
}

// Request sends the message and blocks until a correlated response arrives,
// the timeout pops, or the context is cancelled - whichever first. A zero
// timeout selects the configured default.
func (b *Bridge) Request(ctx context.Context, msg *escrow.Message, timeout time.Duration) (fftypes.JSONObject, error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	if msg.ID == nil {
		msg.ID = fftypes.NewUUID()
	}
	req := b.addInflight(msg.ID)

	if err := b.send(ctx, msg); err != nil {
		b.removeInflight(msg.ID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-req.response:
		log.L(ctx).Debugf("Request %s resolved after %.2fms", req.id, float64(time.Since(req.startTime))/float64(time.Millisecond))
		return res.data, res.err
	case <-timer.C:
		b.removeInflight(msg.ID)
		return nil, i18n.NewError(ctx, escrowmsgs.MsgRequestTimeout, msg.ID, timeout)
	case <-ctx.Done():
		b.removeInflight(msg.ID)
		return nil, ctx.Err()
	}
}

// HandleInbound processes one inbound message. A message whose id matches an
// in-flight request is its response; otherwise, if a request handler is
// installed, the message is treated as a request and answered.
//
// Answering happens on its own goroutine - the response travels back through
// the same channel the caller dispatches inbound messages from, so answering
// inline would deadlock a single-threaded dispatcher.
func (b *Bridge) HandleInbound(ctx context.Context, msg *escrow.Message) {
	if msg.ID != nil {
		if req := b.popInflight(msg.ID); req != nil {
			b.resolve(ctx, req, msg)
			return
		}
	}

	b.handlerMux.Lock()
	handler := b.handler
	b.handlerMux.Unlock()
	if handler == nil {
		return
	}
	go b.handleRequest(ctx, handler, msg)
}

func (b *Bridge) handleRequest(ctx context.Context, handler escrow.RequestHandler, msg *escrow.Message) {
	response := &escrow.Message{
		ID: msg.ID,
		To: msg.From,
	}
	result, err := handler(ctx, msg)
	if err != nil {
		// the failure goes back to the requester, never up our own stack
		log.L(ctx).Warnf("Request handler failed for %s: %s", msg.ID, err)
		response.Data = fftypes.JSONObject{
			"error": fftypes.JSONObject{
				"code":        "F00",
				"message":     err.Error(),
				"triggeredBy": b.ownAddress,
			},
		}
	} else {
		response.Data = result
	}
	if err := b.send(ctx, response); err != nil {
		log.L(ctx).Errorf("Failed to send response to %s: %s", msg.From, err)
	}
}

func (b *Bridge) resolve(ctx context.Context, req *inflightRequest, msg *escrow.Message) {
	if errInfo := msg.Data.GetObject("error"); len(errInfo) > 0 {
		req.response <- inflightResponse{
			err: i18n.NewError(ctx, escrowmsgs.MsgRequestFailed,
				req.id, errInfo.GetString("triggeredBy"), errInfo.GetString("code"), errInfo.GetString("message")),
		}
		return
	}
	req.response <- inflightResponse{data: msg.Data}
}
