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

package xrpescrow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
	"github.com/ilp-go/xrpescrow/internal/xrpclient"
)

// NotAcceptedError reports a transaction rejected by the ledger, either on
// preliminary submission or at validation. EngineResult carries the ledger's
// result code for classification by the caller.
type NotAcceptedError struct {
	Hash         string
	EngineResult string
}

func (e *NotAcceptedError) Error() string {
	return fmt.Sprintf("Transaction '%s' was not accepted by the ledger: %s", e.Hash, e.EngineResult)
}

// retryableEngineResult reports whether a rejection is transient: ter class
// results may succeed in a later ledger, and telCAN_NOT_QUEUE variants clear
// once the queue drains. Everything else is final.
func retryableEngineResult(engineResult string) bool {
	return strings.HasPrefix(engineResult, "ter") ||
		strings.HasPrefix(engineResult, "telCAN_NOT_QUEUE")
}

// failsFast reports whether a preliminary submission result means the
// transaction will never appear on the validated stream, so there is nothing
// to wait for
func failsFast(engineResult string) bool {
	return strings.HasPrefix(engineResult, "tem") ||
		strings.HasPrefix(engineResult, "tef") ||
		strings.HasPrefix(engineResult, "tel")
}

// submitter signs and submits transactions, then parks the caller until the
// validated-transaction stream reports the hash. Correlation is purely by
// transaction hash - the stream carries every transaction touching the local
// account, ours and the peer's alike.
type submitter struct {
	ctx     context.Context
	client  xrpclient.Client
	secret  string
	mux     sync.Mutex
	pending map[string]chan error
}

func newSubmitter(ctx context.Context, client xrpclient.Client, secret string) *submitter {
	return &submitter{
		ctx:     ctx,
		client:  client,
		secret:  secret,
		pending: make(map[string]chan error),
	}
}

func (s *submitter) addPending(ctx context.Context, hash string) (chan error, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.pending[hash]; ok {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgDuplicateSubmission, hash)
	}
	resolved := make(chan error, 1)
	s.pending[hash] = resolved
	return resolved, nil
}

func (s *submitter) removePending(hash string) {
	s.mux.Lock()
	delete(s.pending, hash)
	s.mux.Unlock()
}

// submitAndWait signs tx, submits it, and blocks until the transaction
// validates or is finally rejected
func (s *submitter) submitAndWait(ctx context.Context, tx fftypes.JSONObject) error {
	signed, err := s.client.Sign(ctx, tx, s.secret)
	if err != nil {
		return err
	}

	resolved, err := s.addPending(ctx, signed.Hash)
	if err != nil {
		return err
	}

	engineResult, err := s.client.Submit(ctx, signed.TxBlob)
	if err != nil {
		s.removePending(signed.Hash)
		return err
	}
	log.L(ctx).Infof("Submitted transaction %s (preliminary result %s)", signed.Hash, engineResult)
	if failsFast(engineResult) {
		s.removePending(signed.Hash)
		return &NotAcceptedError{Hash: signed.Hash, EngineResult: engineResult}
	}

	select {
	case err := <-resolved:
		return err
	case <-ctx.Done():
		s.removePending(signed.Hash)
		return i18n.NewError(ctx, escrowmsgs.MsgSubmissionAborted, signed.Hash)
	case <-s.ctx.Done():
		s.removePending(signed.Hash)
		return i18n.NewError(s.ctx, escrowmsgs.MsgSubmissionAborted, signed.Hash)
	}
}

// transactionValidated resolves any submission awaiting this hash. A hash
// with no waiter is simply one we did not submit ourselves.
func (s *submitter) transactionValidated(hash, engineResult string) {
	s.mux.Lock()
	resolved, ok := s.pending[hash]
	delete(s.pending, hash)
	s.mux.Unlock()
	if !ok {
		return
	}
	if engineResult == "tesSUCCESS" {
		resolved <- nil
	} else {
		resolved <- &NotAcceptedError{Hash: hash, EngineResult: engineResult}
	}
}
