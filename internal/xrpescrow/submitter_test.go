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
	"testing"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/stretchr/testify/assert"
)

func TestSubmitAndWaitSuccess(t *testing.T) {
	fc := newFakeClient()
	s := newSubmitter(context.Background(), fc, testSecret)

	result := make(chan error, 1)
	go func() {
		result <- s.submitAndWait(context.Background(), fftypes.JSONObject{"TransactionType": "Payment"})
	}()

	tx := fc.lastSubmitted(t, 1)
	s.transactionValidated(tx.GetString("hash"), "tesSUCCESS")
	assert.NoError(t, <-result)
	assert.Empty(t, s.pending)
}

func TestSubmitAndWaitRejectedAtValidation(t *testing.T) {
	fc := newFakeClient()
	s := newSubmitter(context.Background(), fc, testSecret)

	result := make(chan error, 1)
	go func() {
		result <- s.submitAndWait(context.Background(), fftypes.JSONObject{"TransactionType": "Payment"})
	}()

	tx := fc.lastSubmitted(t, 1)
	s.transactionValidated(tx.GetString("hash"), "tecNO_DST")
	err := <-result
	notAccepted, ok := err.(*NotAcceptedError)
	assert.True(t, ok)
	assert.Equal(t, "tecNO_DST", notAccepted.EngineResult)
}

func TestSubmitAndWaitFailFast(t *testing.T) {
	fc := newFakeClient()
	s := newSubmitter(context.Background(), fc, testSecret)

	for _, engineResult := range []string{"temMALFORMED", "tefPAST_SEQ", "telINSUF_FEE_P"} {
		fc.submitResult = engineResult
		err := s.submitAndWait(context.Background(), fftypes.JSONObject{"TransactionType": "Payment"})
		notAccepted, ok := err.(*NotAcceptedError)
		assert.True(t, ok)
		assert.Equal(t, engineResult, notAccepted.EngineResult)
	}
	assert.Empty(t, s.pending)
}

func TestSubmitAndWaitSignFails(t *testing.T) {
	fc := newFakeClient()
	fc.signErr = fmt.Errorf("pop")
	s := newSubmitter(context.Background(), fc, testSecret)

	err := s.submitAndWait(context.Background(), fftypes.JSONObject{"TransactionType": "Payment"})
	assert.EqualError(t, err, "pop")
}

func TestSubmitAndWaitSubmitFails(t *testing.T) {
	fc := newFakeClient()
	fc.submitErr = fmt.Errorf("pop")
	s := newSubmitter(context.Background(), fc, testSecret)

	err := s.submitAndWait(context.Background(), fftypes.JSONObject{"TransactionType": "Payment"})
	assert.EqualError(t, err, "pop")
	assert.Empty(t, s.pending)
}

func TestSubmitAndWaitCallerAborts(t *testing.T) {
	fc := newFakeClient()
	s := newSubmitter(context.Background(), fc, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- s.submitAndWait(ctx, fftypes.JSONObject{"TransactionType": "Payment"})
	}()

	fc.lastSubmitted(t, 1)
	cancel()
	assert.Regexp(t, "FF10909", <-result)
	assert.Empty(t, s.pending)
}

func TestSubmitAndWaitEngineStops(t *testing.T) {
	fc := newFakeClient()
	engineCtx, cancel := context.WithCancel(context.Background())
	s := newSubmitter(engineCtx, fc, testSecret)

	result := make(chan error, 1)
	go func() {
		result <- s.submitAndWait(context.Background(), fftypes.JSONObject{"TransactionType": "Payment"})
	}()

	fc.lastSubmitted(t, 1)
	cancel()
	assert.Regexp(t, "FF10909", <-result)
}

func TestSubmitDuplicateHash(t *testing.T) {
	fc := newFakeClient()
	s := newSubmitter(context.Background(), fc, testSecret)

	resolved, err := s.addPending(context.Background(), "HASH0001")
	assert.NoError(t, err)
	assert.NotNil(t, resolved)

	// the fake signs the first transaction as HASH0001 too
	err = s.submitAndWait(context.Background(), fftypes.JSONObject{"TransactionType": "Payment"})
	assert.Regexp(t, "FF10908", err)
}

func TestValidatedUnknownHash(t *testing.T) {
	s := newSubmitter(context.Background(), newFakeClient(), testSecret)
	s.transactionValidated("UNKNOWN", "tesSUCCESS")
	assert.Empty(t, s.pending)
}

func TestRetryableEngineResult(t *testing.T) {
	assert.True(t, retryableEngineResult("terQUEUED"))
	assert.True(t, retryableEngineResult("terPRE_SEQ"))
	assert.True(t, retryableEngineResult("telCAN_NOT_QUEUE"))
	assert.True(t, retryableEngineResult("telCAN_NOT_QUEUE_FULL"))
	assert.False(t, retryableEngineResult("tecNO_TARGET"))
	assert.False(t, retryableEngineResult("temMALFORMED"))
	assert.False(t, retryableEngineResult("telINSUF_FEE_P"))
	assert.False(t, retryableEngineResult("tesSUCCESS"))
}
