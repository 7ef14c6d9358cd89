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

// Package xrpclient is the ledger-client collaborator: the narrow contract
// the escrow engine consumes, and an implementation of it speaking rippled
// JSON-RPC over HTTP plus the websocket transaction subscription stream.
// Transaction signing and binary serialization stay on the rippled side - the
// engine never reimplements them.
package xrpclient

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/ffresty"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-common/pkg/wsclient"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
)

// AccountInfo is the validated state of an account as reported by rippled
type AccountInfo struct {
	Address      string
	BalanceDrops string
	Sequence     uint32
}

// SignedTx is the result of signing a transaction: its hash (the submission
// correlation key) and the signed blob for submission
type SignedTx struct {
	Hash   string
	TxBlob string
}

// TransactionEvent is one notification from the transaction subscription
// stream. Transaction and Meta are passed through raw - interpretation
// belongs to the translator.
type TransactionEvent struct {
	Validated    bool
	EngineResult string
	Transaction  fftypes.JSONObject
	Meta         fftypes.JSONObject
}

// Client is the ledger-client contract consumed by the escrow engine
type Client interface {
	// Connect establishes the websocket subscription for the local account
	Connect() error

	// Close tears down the websocket connection
	Close()

	// AccountInfo queries the current sequence and balance of an account
	AccountInfo(ctx context.Context, address string) (*AccountInfo, error)

	// Fee returns the current open-ledger fee in drops
	Fee(ctx context.Context) (string, error)

	// Sign signs a tx_json object with the supplied secret
	Sign(ctx context.Context, tx fftypes.JSONObject, secret string) (*SignedTx, error)

	// Submit sends a signed transaction blob, returning the preliminary
	// engine result. Final disposition arrives on the event stream.
	Submit(ctx context.Context, txBlob string) (string, error)

	// Receive is the stream of transaction events for the subscribed
	// account, in ledger emission order. Closed on disconnect.
	Receive() <-chan *TransactionEvent
}

// Rippled implements Client against a rippled server
type Rippled struct {
	ctx     context.Context
	address string
	client  *resty.Client
	wsconn  wsclient.WSClient
	events  chan *TransactionEvent
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcResponse struct {
	Result fftypes.JSONObject `json:"result"`
}

// NewRippled constructs a Rippled client from a config section initialized
// with InitConfig
func NewRippled(ctx context.Context, conf config.Section) (*Rippled, error) {
	if conf.GetString(ffresty.HTTPConfigURL) == "" {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgMissingClientConfig, "url")
	}
	r := &Rippled{
		ctx:     log.WithLogField(ctx, "proto", "xrpl"),
		address: conf.GetString(ClientConfigAddress),
		client:  ffresty.New(ctx, conf),
		events:  make(chan *TransactionEvent),
	}

	wsConfig := wsclient.GenerateConfig(conf)
	if wsConfig.WSKeyPath == "" {
		wsConfig.WSKeyPath = "/"
	}
	wsconn, err := wsclient.New(ctx, wsConfig, nil, r.afterConnect)
	if err != nil {
		return nil, err
	}
	r.wsconn = wsconn

	go r.receiveLoop()
	return r, nil
}

func (r *Rippled) Connect() error {
	return r.wsconn.Connect()
}

func (r *Rippled) Close() {
	r.wsconn.Close()
}

func (r *Rippled) Receive() <-chan *TransactionEvent {
	return r.events
}

// afterConnect re-subscribes to the local account's transaction stream on
// each connect/reconnect
func (r *Rippled) afterConnect(ctx context.Context, w wsclient.WSClient) error {
	b, _ := json.Marshal(fftypes.JSONObject{
		"command":  "subscribe",
		"accounts": []string{r.address},
	})
	return w.Send(ctx, b)
}

func (r *Rippled) receiveLoop() {
	l := log.L(r.ctx).WithField("role", "xrpl-stream")
	ctx := log.WithLogger(r.ctx, l)
	defer close(r.events)
	for {
		select {
		case <-ctx.Done():
			l.Debugf("Receive loop exiting (context cancelled)")
			return
		case msgBytes, ok := <-r.wsconn.Receive():
			if !ok {
				l.Debugf("Receive loop exiting (receive channel closed)")
				return
			}
			var msg fftypes.JSONObject
			if err := json.Unmarshal(msgBytes, &msg); err != nil {
				l.Errorf("Message cannot be parsed as JSON: %s\n%s", err, string(msgBytes))
				continue // Swallow this and move on
			}
			switch msg.GetString("type") {
			case "transaction":
				ev := &TransactionEvent{
					Validated:    msg.GetBool("validated"),
					EngineResult: msg.GetString("engine_result"),
					Transaction:  msg.GetObject("transaction"),
					Meta:         msg.GetObject("meta"),
				}
				select {
				case r.events <- ev:
				case <-ctx.Done():
					return
				}
			case "response":
				l.Debugf("Subscription response: %s", msg.GetString("status"))
			default:
				l.Debugf("Ignoring '%s' stream message", msg.GetString("type"))
			}
		}
	}
}

// call performs one rippled JSON-RPC method invocation
func (r *Rippled) call(ctx context.Context, method string, params fftypes.JSONObject) (fftypes.JSONObject, error) {
	var rpcRes rpcResponse
	res, err := r.client.R().SetContext(ctx).
		SetBody(&rpcRequest{Method: method, Params: []interface{}{params}}).
		SetResult(&rpcRes).
		Post("/")
	if err != nil || !res.IsSuccess() {
		return nil, ffresty.WrapRestErr(ctx, res, err, escrowmsgs.MsgRPCRequestFailed)
	}
	if rpcRes.Result.GetString("status") != "success" {
		errString := rpcRes.Result.GetString("error_message")
		if errString == "" {
			errString = rpcRes.Result.GetString("error")
		}
		return nil, i18n.NewError(ctx, escrowmsgs.MsgRPCCallFailed, method, errString)
	}
	return rpcRes.Result, nil
}

func (r *Rippled) AccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	result, err := r.call(ctx, "account_info", fftypes.JSONObject{
		"account":      address,
		"ledger_index": "current",
	})
	if err != nil {
		return nil, err
	}
	accountData := result.GetObject("account_data")
	return &AccountInfo{
		Address:      accountData.GetString("Account"),
		BalanceDrops: accountData.GetString("Balance"),
		Sequence:     uint32(accountData.GetInt64("Sequence")),
	}, nil
}

func (r *Rippled) Fee(ctx context.Context) (string, error) {
	result, err := r.call(ctx, "fee", fftypes.JSONObject{})
	if err != nil {
		return "", err
	}
	fee := result.GetObject("drops").GetString("open_ledger_fee")
	if fee == "" {
		fee = "10"
	}
	return fee, nil
}

func (r *Rippled) Sign(ctx context.Context, tx fftypes.JSONObject, secret string) (*SignedTx, error) {
	result, err := r.call(ctx, "sign", fftypes.JSONObject{
		"secret":  secret,
		"tx_json": tx,
	})
	if err != nil {
		return nil, err
	}
	return &SignedTx{
		Hash:   result.GetObject("tx_json").GetString("hash"),
		TxBlob: result.GetString("tx_blob"),
	}, nil
}

func (r *Rippled) Submit(ctx context.Context, txBlob string) (string, error) {
	result, err := r.call(ctx, "submit", fftypes.JSONObject{
		"tx_blob": txBlob,
	})
	if err != nil {
		return "", err
	}
	return result.GetString("engine_result"), nil
}
