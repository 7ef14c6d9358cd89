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
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/ilp-go/xrpescrow/internal/conditions"
	"github.com/ilp-go/xrpescrow/internal/pluginconfig"
	"github.com/ilp-go/xrpescrow/internal/translator"
	"github.com/ilp-go/xrpescrow/internal/xrpclient"
	"github.com/ilp-go/xrpescrow/pkg/escrow"
	"github.com/stretchr/testify/assert"
)

const (
	testAddress = "rALICE"
	testPeer    = "rBOB"
	testSecret  = "shh"
	testPrefix  = "g.crypto.ripple."
)

// fakeClient is an in-memory xrpclient.Client: signing assigns sequential
// hashes, and validation events are pushed by the test through the stream
type fakeClient struct {
	mux          sync.Mutex
	events       chan *xrpclient.TransactionEvent
	sequence     uint32
	balance      string
	fee          string
	accountErr   error
	feeErr       error
	signErr      error
	submitErr    error
	submitResult string
	submitted    []fftypes.JSONObject
	hashCount    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		events:       make(chan *xrpclient.TransactionEvent),
		sequence:     100,
		balance:      "20000000",
		fee:          "12",
		submitResult: "tesSUCCESS",
	}
}

func (f *fakeClient) Connect() error { return nil }
func (f *fakeClient) Close()         {}

func (f *fakeClient) Receive() <-chan *xrpclient.TransactionEvent { return f.events }

func (f *fakeClient) AccountInfo(ctx context.Context, address string) (*xrpclient.AccountInfo, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &xrpclient.AccountInfo{Address: address, BalanceDrops: f.balance, Sequence: f.sequence}, nil
}

func (f *fakeClient) Fee(ctx context.Context) (string, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.fee, f.feeErr
}

func (f *fakeClient) Sign(ctx context.Context, tx fftypes.JSONObject, secret string) (*xrpclient.SignedTx, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.signErr != nil {
		return nil, f.signErr
	}
	f.hashCount++
	hash := fmt.Sprintf("HASH%.4d", f.hashCount)
	signed := wire(tx)
	signed["hash"] = hash
	f.submitted = append(f.submitted, signed)
	return &xrpclient.SignedTx{Hash: hash, TxBlob: "BLOB/" + hash}, nil
}

func (f *fakeClient) Submit(ctx context.Context, txBlob string) (string, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitResult, nil
}

// lastSubmitted blocks until at least n transactions have been signed, then
// returns the latest
func (f *fakeClient) lastSubmitted(t *testing.T, n int) fftypes.JSONObject {
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mux.Lock()
		count := len(f.submitted)
		var tx fftypes.JSONObject
		if count >= n {
			tx = f.submitted[count-1]
		}
		f.mux.Unlock()
		if tx != nil {
			return tx
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction %d never submitted", n)
		}
		time.Sleep(1 * time.Millisecond)
	}
}

type fulfilledEvent struct {
	transfer    *escrow.Transfer
	fulfillment string
}

type testCallbacks struct {
	connected chan struct{}
	prepared  chan *escrow.Transfer
	fulfilled chan fulfilledEvent
	cancelled chan *escrow.Transfer
	messages  chan *escrow.Message
}

func newTestCallbacks() *testCallbacks {
	return &testCallbacks{
		connected: make(chan struct{}, 1),
		prepared:  make(chan *escrow.Transfer, 10),
		fulfilled: make(chan fulfilledEvent, 10),
		cancelled: make(chan *escrow.Transfer, 10),
		messages:  make(chan *escrow.Message, 10),
	}
}

func (cb *testCallbacks) Connected()                          { cb.connected <- struct{}{} }
func (cb *testCallbacks) TransferPrepared(t *escrow.Transfer) { cb.prepared <- t }
func (cb *testCallbacks) TransferFulfilled(t *escrow.Transfer, fulfillment string) {
	cb.fulfilled <- fulfilledEvent{transfer: t, fulfillment: fulfillment}
}
func (cb *testCallbacks) TransferCancelled(t *escrow.Transfer) { cb.cancelled <- t }
func (cb *testCallbacks) MessageReceived(m *escrow.Message)    { cb.messages <- m }

func newTestEngine(t *testing.T, tweak func(conf config.Section)) (*XRPEscrow, *fakeClient, *testCallbacks, func()) {
	pluginconfig.Reset()
	conf := config.RootSection("plugin")
	e := &XRPEscrow{}
	e.InitConfig(conf)
	conf.SubSection(pluginconfig.XRPSection).Set(xrpclient.ClientConfigAddress, testAddress)
	conf.SubSection(pluginconfig.XRPSection).Set(xrpclient.ClientConfigSecret, testSecret)
	if tweak != nil {
		tweak(conf)
	}

	fc := newFakeClient()
	cb := newTestCallbacks()
	e.client = fc
	ctx, cancel := context.WithCancel(context.Background())
	err := e.Init(ctx, cancel, conf, cb)
	assert.NoError(t, err)
	err = e.Start()
	assert.NoError(t, err)
	<-cb.connected
	return e, fc, cb, cancel
}

func testFulfillment() (fulfillment, condition string) {
	preimage := []byte("super-secret-preimage")
	digest := sha256.Sum256(preimage)
	return base64.RawURLEncoding.EncodeToString(preimage),
		base64.RawURLEncoding.EncodeToString(digest[:])
}

// wire re-encodes an object the way it would arrive off the websocket, with
// plain maps and float64 numbers throughout
func wire(obj fftypes.JSONObject) fftypes.JSONObject {
	b, _ := json.Marshal(obj)
	var out fftypes.JSONObject
	_ = json.Unmarshal(b, &out)
	return out
}

// validatedEvent turns a submitted tx_json back into the stream notification
// rippled would emit once the transaction validates
func validatedEvent(tx fftypes.JSONObject, engineResult string) *xrpclient.TransactionEvent {
	streamTx := wire(tx)
	ev := &xrpclient.TransactionEvent{
		Validated:    true,
		EngineResult: engineResult,
		Transaction:  streamTx,
		Meta:         fftypes.JSONObject{"AffectedNodes": []interface{}{}},
	}
	if engineResult != "tesSUCCESS" {
		return ev
	}
	locator := "LOCATOR/" + streamTx.GetString("hash")
	switch streamTx.GetString("TransactionType") {
	case "EscrowCreate":
		ev.Meta = escrowMeta("CreatedNode", "NewFields", locator, fftypes.JSONObject{
			"Account":     streamTx.GetString("Account"),
			"Destination": streamTx.GetString("Destination"),
			"Amount":      streamTx.GetString("Amount"),
			"Condition":   streamTx.GetString("Condition"),
			"CancelAfter": streamTx["CancelAfter"],
		})
	case "EscrowFinish", "EscrowCancel":
		// the test fills in the meta itself, since it depends on the creation
	}
	return ev
}

func escrowMeta(nodeType, fieldsKey, locator string, fields fftypes.JSONObject) fftypes.JSONObject {
	return wire(fftypes.JSONObject{
		"AffectedNodes": []interface{}{
			fftypes.JSONObject{
				nodeType: fftypes.JSONObject{
					"LedgerEntryType": "Escrow",
					"LedgerIndex":     locator,
					fieldsKey:         fields,
				},
			},
		},
	})
}

// prepareIncoming pushes a peer-created escrow through the stream and waits
// for the prepared callback
func prepareIncoming(t *testing.T, e *XRPEscrow, fc *fakeClient, cb *testCallbacks, transferID, condition string, expiresAt time.Time) *escrow.Transfer {
	ev := incomingCreateEvent(transferID, condition, expiresAt)
	fc.events <- ev
	select {
	case transfer := <-cb.prepared:
		return transfer
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never prepared")
		return nil
	}
}

func incomingCreateEvent(transferID, condition string, expiresAt time.Time) *xrpclient.TransactionEvent {
	conditionHex, _ := conditions.EncodeCondition(context.Background(), condition)
	tx := xrpclient.BuildEscrowCreation(testPeer, testAddress, "500000", conditionHex,
		xrpclient.XRPTime(expiresAt), 7, "10", []xrpclient.Memo{
			{Type: translator.MemoTypeID, Data: transferID},
			{Type: translator.MemoTypeILP, Data: "ilp-packet"},
		})
	tx["hash"] = "PEERHASH/" + transferID
	return validatedEvent(tx, "tesSUCCESS")
}
