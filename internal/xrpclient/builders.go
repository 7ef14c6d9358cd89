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

package xrpclient

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
)

// The XRP Ledger epoch is 2000-01-01T00:00:00Z - 0x386D4380 seconds after
// the Unix epoch
const xrpEpochOffset int64 = 946684800

// XRPTime converts an absolute time to ledger epoch seconds
func XRPTime(t time.Time) int64 {
	return t.Unix() - xrpEpochOffset
}

// FromXRPTime converts ledger epoch seconds to an absolute time
func FromXRPTime(ledgerTime int64) time.Time {
	return time.Unix(ledgerTime+xrpEpochOffset, 0).UTC()
}

// Memo is one protocol metadata entry attached to a transaction. Type is a
// URI, Data UTF-8 text; both are hex encoded at the ledger layer.
type Memo struct {
	Type string
	Data string
}

func hexUpper(s string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(s)))
}

func memosField(memos []Memo) []interface{} {
	out := make([]interface{}, len(memos))
	for i, m := range memos {
		out[i] = fftypes.JSONObject{
			"Memo": fftypes.JSONObject{
				"MemoType": hexUpper(m.Type),
				"MemoData": hexUpper(m.Data),
			},
		}
	}
	return out
}

// BuildEscrowCreation builds the tx_json for an EscrowCreate holding
// amountDrops for destination until cancelAfter (ledger epoch), unlockable
// with the supplied hex condition
func BuildEscrowCreation(account, destination, amountDrops, conditionHex string, cancelAfter int64, sequence uint32, fee string, memos []Memo) fftypes.JSONObject {
	tx := fftypes.JSONObject{
		"TransactionType": "EscrowCreate",
		"Account":         account,
		"Destination":     destination,
		"Amount":          amountDrops,
		"Condition":       conditionHex,
		"CancelAfter":     cancelAfter,
		"Sequence":        sequence,
		"Fee":             fee,
	}
	if len(memos) > 0 {
		tx["Memos"] = memosField(memos)
	}
	return tx
}

// BuildEscrowExecution builds the tx_json for an EscrowFinish revealing the
// hex fulfillment of the escrow at (owner, offerSequence)
func BuildEscrowExecution(account, owner string, offerSequence uint32, conditionHex, fulfillmentHex string, sequence uint32, fee string, memos []Memo) fftypes.JSONObject {
	tx := fftypes.JSONObject{
		"TransactionType": "EscrowFinish",
		"Account":         account,
		"Owner":           owner,
		"OfferSequence":   offerSequence,
		"Condition":       conditionHex,
		"Fulfillment":     fulfillmentHex,
		"Sequence":        sequence,
		"Fee":             fee,
	}
	if len(memos) > 0 {
		tx["Memos"] = memosField(memos)
	}
	return tx
}

// BuildEscrowCancellation builds the tx_json for an EscrowCancel of the
// escrow at (owner, offerSequence)
func BuildEscrowCancellation(account, owner string, offerSequence uint32, sequence uint32, fee string) fftypes.JSONObject {
	return fftypes.JSONObject{
		"TransactionType": "EscrowCancel",
		"Account":         account,
		"Owner":           owner,
		"OfferSequence":   offerSequence,
		"Sequence":        sequence,
		"Fee":             fee,
	}
}

// BuildPayment builds the tx_json for a minimal Payment used as a message
// carrier
func BuildPayment(account, destination, amountDrops string, sequence uint32, fee string, memos []Memo) fftypes.JSONObject {
	tx := fftypes.JSONObject{
		"TransactionType": "Payment",
		"Account":         account,
		"Destination":     destination,
		"Amount":          amountDrops,
		"Sequence":        sequence,
		"Fee":             fee,
	}
	if len(memos) > 0 {
		tx["Memos"] = memosField(memos)
	}
	return tx
}
