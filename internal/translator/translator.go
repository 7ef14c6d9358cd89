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

// Package translator turns one validated ledger transaction event into a
// protocol-level transfer or message record. Escrow finish/cancel
// transactions carry no memos of their own, so translation of those depends
// on the creation record cached when the matching EscrowCreate validated.
package translator

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/ilp-go/xrpescrow/internal/conditions"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
	"github.com/ilp-go/xrpescrow/internal/xrpclient"
	"github.com/ilp-go/xrpescrow/pkg/escrow"
)

// Memo type URIs carrying protocol metadata over the ledger's native memos
const (
	MemoTypeID          = "https://interledger.org/rel/xrpId"
	MemoTypeILP         = "https://interledger.org/rel/xrpIlp"
	MemoTypeMessage     = "https://interledger.org/rel/xrpMessage"
	MemoTypeRequestID   = "https://interledger.org/rel/xrpRequestId"
	MemoTypeFulfillment = "https://interledger.org/rel/xrpFulfillment"
)

// TxType is the closed set of ledger transaction types this engine
// interprets
type TxType int

const (
	TxOther TxType = iota
	TxEscrowCreate
	TxEscrowFinish
	TxEscrowCancel
	TxPayment
)

// DecodeTxType maps the ledger's transaction type discriminant, decoded once
// at the translator boundary
func DecodeTxType(transactionType string) TxType {
	switch transactionType {
	case "EscrowCreate":
		return TxEscrowCreate
	case "EscrowFinish":
		return TxEscrowFinish
	case "EscrowCancel":
		return TxEscrowCancel
	case "Payment":
		return TxPayment
	default:
		return TxOther
	}
}

// CreationRecord is what the translator caches from an EscrowCreate, for
// reuse when the matching finish/cancel arrives
type CreationRecord struct {
	Account  string
	Sequence uint32
	Memos    map[string][]byte
}

// State is the cache the translator reads and writes while translating.
// Implementations are mutated only from the single event-handling goroutine.
type State interface {
	// GetCreation looks up a cached creation record by escrow locator or by
	// transfer id
	GetCreation(key string) *CreationRecord

	// SetCreation caches a creation record under the given key
	SetCreation(key string, rec *CreationRecord)

	// NoteToSelf returns the sender-local annotation for a transfer, if any
	NoteToSelf(transferID string) *fftypes.JSONAny
}

// TransferEvent is a translated escrow transaction: the protocol transfer
// record plus the ledger-native escrow locator
type TransferEvent struct {
	Transfer *escrow.Transfer
	Owner    string
	Sequence uint32
	Locator  string
}

// Translator is stateless apart from the supplied State cache
type Translator struct {
	Prefix  string
	Address string
	State   State
}

// parseEscrow scans the affected-nodes metadata for an escrow ledger entry,
// preferring a deletion record (finish/cancel) over a creation record
func parseEscrow(meta fftypes.JSONObject) (node fftypes.JSONObject, index string) {
	entries := meta.GetObjectArray("AffectedNodes")
	for _, nodeType := range []string{"DeletedNode", "CreatedNode"} {
		for _, entry := range entries {
			n := entry.GetObject(nodeType)
			if n.GetString("LedgerEntryType") == "Escrow" {
				fields := n.GetObject("NewFields")
				if len(fields) == 0 {
					fields = n.GetObject("FinalFields")
				}
				return fields, n.GetString("LedgerIndex")
			}
		}
	}
	return nil, ""
}

// ParseMemos decodes a transaction's memos into a map from memo-type URI to
// raw bytes. Undecodable entries are skipped.
func ParseMemos(ctx context.Context, tx fftypes.JSONObject) map[string][]byte {
	memos := make(map[string][]byte)
	for _, entry := range tx.GetObjectArray("Memos") {
		memo := entry.GetObject("Memo")
		memoType, err := hex.DecodeString(memo.GetString("MemoType"))
		if err != nil {
			log.L(ctx).Debugf("Skipping undecodable memo type: %s", err)
			continue
		}
		memoData, err := hex.DecodeString(memo.GetString("MemoData"))
		if err != nil {
			log.L(ctx).Debugf("Skipping undecodable memo data: %s", err)
			continue
		}
		memos[string(memoType)] = memoData
	}
	return memos
}

func (t *Translator) direction(owner, destination string) (escrow.Direction, bool) {
	switch t.Address {
	case owner:
		return escrow.DirectionOutgoing, true
	case destination:
		return escrow.DirectionIncoming, true
	default:
		return "", false
	}
}

// EscrowToTransfer translates a validated escrow create/finish/cancel event
// into the transfer it affects
func (t *Translator) EscrowToTransfer(ctx context.Context, ev *xrpclient.TransactionEvent) (*TransferEvent, error) {
	node, locator := parseEscrow(ev.Meta)
	if locator == "" {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgNoEscrowInMeta)
	}

	// The creation transaction's memos carry the protocol fields. Cache them
	// under the locator, so the finish/cancel that references the escrow by
	// (owner, sequence) can recover them. Memos on other escrow transactions
	// (the fulfillment reveal on a finish) must not clobber the record.
	tx := ev.Transaction
	if DecodeTxType(tx.GetString("TransactionType")) == TxEscrowCreate && len(tx.GetObjectArray("Memos")) > 0 {
		t.State.SetCreation(locator, &CreationRecord{
			Account:  tx.GetString("Account"),
			Sequence: uint32(tx.GetInt64("Sequence")),
			Memos:    ParseMemos(ctx, tx),
		})
	}

	rec := t.State.GetCreation(locator)
	if rec == nil {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgNoCreationRecord, locator)
	}
	idBytes, ok := rec.Memos[MemoTypeID]
	if !ok {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgMissingTransferMemos)
	}
	id := string(idBytes)

	// Alias under the transfer id as well, so either key resolves
	t.State.SetCreation(id, rec)

	owner := node.GetString("Account")
	destination := node.GetString("Destination")
	direction, ok := t.direction(owner, destination)
	if !ok {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgBadTxDirection)
	}

	condition, err := conditions.DecodeCondition(ctx, node.GetString("Condition"))
	if err != nil {
		return nil, err
	}

	return &TransferEvent{
		Transfer: &escrow.Transfer{
			ID:                 id,
			To:                 t.Prefix + destination,
			From:               t.Prefix + owner,
			Ledger:             t.Prefix,
			Direction:          direction,
			Amount:             node.GetString("Amount"),
			ILP:                string(rec.Memos[MemoTypeILP]),
			ExecutionCondition: condition,
			ExpiresAt:          fftypes.UnixTime(xrpclient.FromXRPTime(node.GetInt64("CancelAfter")).Unix()),
			NoteToSelf:         t.State.NoteToSelf(id),
		},
		Owner:    rec.Account,
		Sequence: rec.Sequence,
		Locator:  locator,
	}, nil
}

// PaymentToMessage translates a validated payment event carrying a message
// memo
func (t *Translator) PaymentToMessage(ctx context.Context, ev *xrpclient.TransactionEvent) (*escrow.Message, error) {
	tx := ev.Transaction
	memos := ParseMemos(ctx, tx)
	raw, ok := memos[MemoTypeMessage]
	if !ok {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgMissingMessageMemo)
	}

	data := fftypes.JSONObject{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, i18n.WrapError(ctx, err, escrowmsgs.MsgInvalidMessageFields, "malformed message memo")
		}
	}

	var id *fftypes.UUID
	if rid, ok := memos[MemoTypeRequestID]; ok {
		parsed, err := fftypes.ParseUUID(ctx, string(rid))
		if err == nil {
			id = parsed
		}
	}
	if id == nil {
		id = fftypes.NewUUID()
	}

	account := tx.GetString("Account")
	destination := tx.GetString("Destination")
	direction, ok := t.direction(account, destination)
	if !ok {
		return nil, i18n.NewError(ctx, escrowmsgs.MsgBadTxDirection)
	}

	return &escrow.Message{
		ID:        id,
		To:        t.Prefix + destination,
		From:      t.Prefix + account,
		Ledger:    t.Prefix,
		Direction: direction,
		Data:      data,
	}, nil
}
