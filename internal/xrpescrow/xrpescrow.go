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

// Package xrpescrow adapts the XRP Ledger's native escrow primitive to the
// conditional-payment plugin contract. Transfers become on-ledger escrows
// locked to a PREIMAGE-SHA-256 condition, messages become minimal payments
// with memos, and all state transitions are driven from the ledger's
// validated-transaction stream - never from local submission success alone.
package xrpescrow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-common/pkg/retry"
	"github.com/ilp-go/xrpescrow/internal/conditions"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
	"github.com/ilp-go/xrpescrow/internal/pluginconfig"
	"github.com/ilp-go/xrpescrow/internal/rpc"
	"github.com/ilp-go/xrpescrow/internal/translator"
	"github.com/ilp-go/xrpescrow/internal/xrpclient"
	"github.com/ilp-go/xrpescrow/pkg/escrow"
)

// messageDrops is the amount carried by a message payment - the minimum the
// ledger will accept
const messageDrops = "1"

// XRPEscrow is the XRP Ledger escrow plugin
type XRPEscrow struct {
	ctx           context.Context
	cancelCtx     context.CancelFunc
	callbacks     escrow.Callbacks
	client        xrpclient.Client
	address       string
	prefix        string
	currencyCode  string
	currencyScale int
	store         *store
	translator    *translator.Translator
	submitter     *submitter
	queue         *submitQueue
	expiry        *expiryScheduler
	bridge        *rpc.Bridge
}

func (e *XRPEscrow) Name() string {
	return "xrpescrow"
}

func (e *XRPEscrow) Init(ctx context.Context, cancelCtx context.CancelFunc, conf config.Section, callbacks escrow.Callbacks) (err error) {
	e.ctx = log.WithLogField(ctx, "proto", "xrpescrow")
	e.cancelCtx = cancelCtx
	e.callbacks = callbacks
	e.prefix = conf.GetString(ConfigLedgerPrefix)
	e.currencyCode = conf.GetString(ConfigCurrencyCode)
	e.currencyScale = conf.GetInt(ConfigCurrencyScale)

	xrpConf := conf.SubSection(pluginconfig.XRPSection)
	e.address = xrpConf.GetString(xrpclient.ClientConfigAddress)
	if e.address == "" {
		return i18n.NewError(ctx, escrowmsgs.MsgMissingClientConfig, xrpclient.ClientConfigAddress)
	}
	if e.client == nil {
		if e.client, err = xrpclient.NewRippled(e.ctx, xrpConf); err != nil {
			return err
		}
	}

	escrowConf := conf.SubSection(pluginconfig.EscrowSection)
	e.store = newStore(escrowConf.GetInt64(EscrowConfigCacheLimit), escrowConf.GetDuration(EscrowConfigRetention))
	e.translator = &translator.Translator{
		Prefix:  e.prefix,
		Address: e.address,
		State:   e.store,
	}
	e.submitter = newSubmitter(e.ctx, e.client, xrpConf.GetString(xrpclient.ClientConfigSecret))
	e.queue = newSubmitQueue(e.ctx)
	e.expiry = &expiryScheduler{
		ctx:         e.ctx,
		grace:       escrowConf.GetDuration(EscrowConfigExpiryGrace),
		maxAttempts: escrowConf.GetInt(EscrowConfigExpiryRetryMaxAttempts),
		retry: &retry.Retry{
			InitialDelay: escrowConf.GetDuration(EscrowConfigExpiryRetryInitialDelay),
			MaximumDelay: escrowConf.GetDuration(EscrowConfigExpiryRetryMaxDelay),
			Factor:       escrowConf.GetFloat64(EscrowConfigExpiryRetryFactor),
		},
		cancel: e.cancelExpired,
	}

	rpcConf := conf.SubSection(pluginconfig.RPCSection)
	e.bridge = rpc.NewBridge(e.ctx, e.address, rpcConf.GetDuration(RPCConfigDefaultTimeout), e.SendMessage)
	return nil
}

// Start connects the validated-transaction subscription and begins event
// dispatch
func (e *XRPEscrow) Start() error {
	if err := e.client.Connect(); err != nil {
		return err
	}
	go e.eventLoop()
	e.callbacks.Connected()
	return nil
}

func (e *XRPEscrow) Stop() {
	e.cancelCtx()
	e.client.Close()
}

func (e *XRPEscrow) Account() string {
	return e.prefix + e.address
}

func (e *XRPEscrow) Info() *escrow.Info {
	return &escrow.Info{
		Prefix:        e.prefix,
		CurrencyCode:  e.currencyCode,
		CurrencyScale: e.currencyScale,
	}
}

func (e *XRPEscrow) Balance(ctx context.Context) (string, error) {
	info, err := e.client.AccountInfo(ctx, e.address)
	if err != nil {
		return "", err
	}
	return info.BalanceDrops, nil
}

// peerAddress extracts the ledger-native account from a prefix-qualified
// protocol address
func (e *XRPEscrow) peerAddress(ctx context.Context, to string) (string, error) {
	if !strings.HasPrefix(to, e.prefix) {
		return "", i18n.NewError(ctx, escrowmsgs.MsgInvalidTransferFields, "address is not on this ledger")
	}
	address := strings.SplitN(strings.TrimPrefix(to, e.prefix), ".", 2)[0]
	if address == "" {
		return "", i18n.NewError(ctx, escrowmsgs.MsgInvalidTransferFields, "address carries no account")
	}
	return address, nil
}

func (e *XRPEscrow) SendTransfer(ctx context.Context, transfer *escrow.Transfer) error {
	switch {
	case transfer.ID == "":
		return i18n.NewError(ctx, escrowmsgs.MsgInvalidTransferFields, "missing id")
	case transfer.Amount == "":
		return i18n.NewError(ctx, escrowmsgs.MsgInvalidTransferFields, "missing amount")
	case transfer.ExpiresAt == nil:
		return i18n.NewError(ctx, escrowmsgs.MsgInvalidTransferFields, "missing expiry")
	}
	destination, err := e.peerAddress(ctx, transfer.To)
	if err != nil {
		return err
	}
	conditionHex, err := conditions.EncodeCondition(ctx, transfer.ExecutionCondition)
	if err != nil {
		return err
	}

	// The note must be in place before validation of our own creation event,
	// which echoes it back on the prepared callback
	e.store.setNote(transfer.ID, transfer.NoteToSelf)

	return e.queue.enqueue(ctx, func(ctx context.Context) error {
		sequence, fee, err := e.nextSequence(ctx)
		if err != nil {
			return err
		}
		tx := xrpclient.BuildEscrowCreation(
			e.address, destination, transfer.Amount, conditionHex,
			xrpclient.XRPTime(*transfer.ExpiresAt.Time()), sequence, fee,
			[]xrpclient.Memo{
				{Type: translator.MemoTypeID, Data: transfer.ID},
				{Type: translator.MemoTypeILP, Data: transfer.ILP},
			})
		return e.submitter.submitAndWait(ctx, tx)
	})
}

func (e *XRPEscrow) FulfillCondition(ctx context.Context, transferID, fulfillment string) error {
	rec := e.store.get(transferID)
	if rec == nil {
		return i18n.NewError(ctx, escrowmsgs.MsgTransferNotFound, transferID)
	}
	switch rec.state {
	case stateCancelled:
		return i18n.NewError(ctx, escrowmsgs.MsgAlreadyRolledBack, transferID)
	case stateFulfilled:
		return i18n.NewError(ctx, escrowmsgs.MsgAlreadyFulfilled, transferID)
	}
	if !conditions.Matches(ctx, fulfillment, rec.transfer.ExecutionCondition) {
		return i18n.NewError(ctx, escrowmsgs.MsgFulfillmentMismatch, transferID)
	}
	conditionHex, err := conditions.EncodeCondition(ctx, rec.transfer.ExecutionCondition)
	if err != nil {
		return err
	}
	fulfillmentHex, err := conditions.EncodeFulfillment(ctx, fulfillment)
	if err != nil {
		return err
	}

	return e.queue.enqueue(ctx, func(ctx context.Context) error {
		sequence, fee, err := e.nextSequence(ctx)
		if err != nil {
			return err
		}
		tx := xrpclient.BuildEscrowExecution(
			e.address, rec.owner, rec.sequence, conditionHex, fulfillmentHex,
			sequence, fee, []xrpclient.Memo{
				{Type: translator.MemoTypeFulfillment, Data: fulfillment},
			})
		return e.submitter.submitAndWait(ctx, tx)
	})
}

func (e *XRPEscrow) GetFulfillment(ctx context.Context, transferID string) (string, error) {
	rec := e.store.get(transferID)
	if rec == nil {
		return "", i18n.NewError(ctx, escrowmsgs.MsgTransferNotFound, transferID)
	}
	switch rec.state {
	case stateCancelled:
		return "", i18n.NewError(ctx, escrowmsgs.MsgAlreadyRolledBack, transferID)
	case statePrepared:
		return "", i18n.NewError(ctx, escrowmsgs.MsgMissingFulfillment, transferID)
	}
	return rec.fulfillment, nil
}

func (e *XRPEscrow) SendMessage(ctx context.Context, msg *escrow.Message) error {
	destination, err := e.peerAddress(ctx, msg.To)
	if err != nil {
		return err
	}
	data := msg.Data
	if data == nil {
		data = fftypes.JSONObject{}
	}
	payload, err := json.Marshal(&data)
	if err != nil {
		return i18n.WrapError(ctx, err, escrowmsgs.MsgInvalidMessageFields, "unserializable data")
	}
	memos := []xrpclient.Memo{
		{Type: translator.MemoTypeMessage, Data: string(payload)},
	}
	if msg.ID != nil {
		memos = append(memos, xrpclient.Memo{Type: translator.MemoTypeRequestID, Data: msg.ID.String()})
	}

	return e.queue.enqueue(ctx, func(ctx context.Context) error {
		sequence, fee, err := e.nextSequence(ctx)
		if err != nil {
			return err
		}
		tx := xrpclient.BuildPayment(e.address, destination, messageDrops, sequence, fee, memos)
		return e.submitter.submitAndWait(ctx, tx)
	})
}

func (e *XRPEscrow) Request(ctx context.Context, msg *escrow.Message, timeout time.Duration) (fftypes.JSONObject, error) {
	return e.bridge.Request(ctx, msg, timeout)
}

func (e *XRPEscrow) SetRequestHandler(handler escrow.RequestHandler) {
	e.bridge.SetHandler(handler)
}

// nextSequence reads the account's current sequence and the open-ledger fee.
// Only ever called from the submit writer goroutine.
func (e *XRPEscrow) nextSequence(ctx context.Context) (uint32, string, error) {
	info, err := e.client.AccountInfo(ctx, e.address)
	if err != nil {
		return 0, "", err
	}
	fee, err := e.client.Fee(ctx)
	if err != nil {
		return 0, "", err
	}
	return info.Sequence, fee, nil
}

// cancelExpired submits an EscrowCancel for a still-prepared transfer. A
// transfer that settled while the expiry timer was pending is a no-op.
func (e *XRPEscrow) cancelExpired(ctx context.Context, transferID string) error {
	rec := e.store.get(transferID)
	if rec == nil || rec.terminal() {
		return nil
	}
	log.L(ctx).Infof("Cancelling expired transfer %s", transferID)
	return e.queue.enqueue(ctx, func(ctx context.Context) error {
		sequence, fee, err := e.nextSequence(ctx)
		if err != nil {
			return err
		}
		tx := xrpclient.BuildEscrowCancellation(e.address, rec.owner, rec.sequence, sequence, fee)
		return e.submitter.submitAndWait(ctx, tx)
	})
}

func (e *XRPEscrow) eventLoop() {
	defer e.cancelCtx()
	l := log.L(e.ctx).WithField("role", "event-loop")
	ctx := log.WithLogger(e.ctx, l)
	events := e.client.Receive()
	for {
		select {
		case <-ctx.Done():
			l.Debugf("Event loop exiting (context cancelled)")
			return
		case ev, ok := <-events:
			if !ok {
				l.Debugf("Event loop exiting (stream closed)")
				return
			}
			e.handleTransaction(ctx, ev)
		}
	}
}

// handleTransaction processes one stream event. Runs only on the event-loop
// goroutine, so state transitions and callbacks are strictly ordered.
func (e *XRPEscrow) handleTransaction(ctx context.Context, ev *xrpclient.TransactionEvent) {
	if !ev.Validated {
		return
	}
	hash := ev.Transaction.GetString("hash")
	e.submitter.transactionValidated(hash, ev.EngineResult)
	if ev.EngineResult != "tesSUCCESS" {
		log.L(ctx).Debugf("Ignoring validated transaction %s with result %s", hash, ev.EngineResult)
		return
	}

	var err error
	switch translator.DecodeTxType(ev.Transaction.GetString("TransactionType")) {
	case translator.TxEscrowCreate:
		err = e.handleEscrowCreate(ctx, ev)
	case translator.TxEscrowFinish:
		err = e.handleEscrowFinish(ctx, ev)
	case translator.TxEscrowCancel:
		err = e.handleEscrowCancel(ctx, ev)
	case translator.TxPayment:
		err = e.handlePayment(ctx, ev)
	default:
		log.L(ctx).Debugf("Ignoring '%s' transaction %s", ev.Transaction.GetString("TransactionType"), hash)
	}
	if err != nil {
		// Swallow after logging - one undecodable transaction must not stall
		// the stream
		log.L(ctx).Errorf("Failed to process transaction %s: %s", hash, err)
	}
}

func (e *XRPEscrow) handleEscrowCreate(ctx context.Context, ev *xrpclient.TransactionEvent) error {
	tev, err := e.translator.EscrowToTransfer(ctx, ev)
	if err != nil {
		return err
	}
	rec, isNew := e.store.prepared(tev)
	if !isNew {
		log.L(ctx).Debugf("Replayed creation of transfer %s ignored", tev.Transfer.ID)
		return nil
	}
	e.store.armExpiry(tev.Transfer.ID, e.expiry.arm(tev.Transfer.ID, *tev.Transfer.ExpiresAt.Time()))
	e.callbacks.TransferPrepared(rec.transfer)
	return nil
}

func (e *XRPEscrow) handleEscrowFinish(ctx context.Context, ev *xrpclient.TransactionEvent) error {
	tev, err := e.translator.EscrowToTransfer(ctx, ev)
	if err != nil {
		return err
	}
	fulfillment, err := conditions.DecodeFulfillment(ctx, ev.Transaction.GetString("Fulfillment"))
	if err != nil {
		return err
	}
	if !conditions.Matches(ctx, fulfillment, tev.Transfer.ExecutionCondition) {
		return i18n.NewError(ctx, escrowmsgs.MsgFulfillmentMismatch, tev.Transfer.ID)
	}
	rec := e.store.settle(tev.Transfer.ID, stateFulfilled, fulfillment)
	if rec == nil {
		log.L(ctx).Debugf("Transfer %s already settled", tev.Transfer.ID)
		return nil
	}
	e.callbacks.TransferFulfilled(rec.transfer, fulfillment)
	return nil
}

func (e *XRPEscrow) handleEscrowCancel(ctx context.Context, ev *xrpclient.TransactionEvent) error {
	tev, err := e.translator.EscrowToTransfer(ctx, ev)
	if err != nil {
		return err
	}
	rec := e.store.settle(tev.Transfer.ID, stateCancelled, "")
	if rec == nil {
		log.L(ctx).Debugf("Transfer %s already settled", tev.Transfer.ID)
		return nil
	}
	e.callbacks.TransferCancelled(rec.transfer)
	return nil
}

func (e *XRPEscrow) handlePayment(ctx context.Context, ev *xrpclient.TransactionEvent) error {
	msg, err := e.translator.PaymentToMessage(ctx, ev)
	if err != nil {
		return err
	}
	e.callbacks.MessageReceived(msg)
	if msg.Direction == escrow.DirectionIncoming {
		e.bridge.HandleInbound(ctx, msg)
	}
	return nil
}
