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

package escrowmsgs

import (
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"golang.org/x/text/language"
)

var ffe = func(key, translation string, statusHint ...int) i18n.ErrorMessageKey {
	return i18n.FFE(language.AmericanEnglish, key, translation, statusHint...)
}

//revive:disable
var (
	MsgInvalidTransferFields  = ffe("FF10900", "Invalid transfer: %s", 400)
	MsgInvalidMessageFields   = ffe("FF10901", "Invalid message: %s", 400)
	MsgTransferNotFound       = ffe("FF10902", "Transfer '%s' not found", 404)
	MsgMissingFulfillment     = ffe("FF10903", "Transfer '%s' has not yet been fulfilled", 404)
	MsgAlreadyRolledBack      = ffe("FF10904", "Transfer '%s' has already been rolled back", 409)
	MsgAlreadyFulfilled       = ffe("FF10905", "Transfer '%s' has already been fulfilled", 409)
	MsgFulfillmentMismatch    = ffe("FF10906", "Fulfillment does not hash to the execution condition of transfer '%s'", 400)
	MsgNotAccepted            = ffe("FF10907", "Transaction '%s' was not accepted by the ledger: %s")
	MsgDuplicateSubmission    = ffe("FF10908", "A submission for transaction '%s' is already awaiting validation")
	MsgSubmissionAborted      = ffe("FF10909", "Cancelled while awaiting validation of transaction '%s'")
	MsgSubmitQueueClosed      = ffe("FF10910", "Submission queue has been stopped")
	MsgBadConditionDigest     = ffe("FF10911", "Execution condition must be a base64url encoded 32 byte digest: %s", 400)
	MsgBadFulfillmentEncoding = ffe("FF10912", "Fulfillment must be base64url encoded: %s", 400)
	MsgBadLedgerCondition     = ffe("FF10913", "Ledger condition '%s' is not a valid PREIMAGE-SHA-256 condition: %s")
	MsgBadLedgerFulfillment   = ffe("FF10914", "Ledger fulfillment '%s' is not a valid PREIMAGE-SHA-256 fulfillment: %s")
	MsgNoEscrowInMeta         = ffe("FF10915", "Transaction metadata contains no escrow ledger entry")
	MsgNoCreationRecord       = ffe("FF10916", "No creation record is cached for escrow '%s' and the event carries no memos")
	MsgMissingTransferMemos   = ffe("FF10917", "Escrow creation memos do not carry a transfer id")
	MsgBadTxDirection         = ffe("FF10918", "Transaction involves neither the local account as owner nor as destination")
	MsgMissingMessageMemo     = ffe("FF10919", "Payment transaction does not carry a message memo")
	MsgRequestTimeout         = ffe("FF10920", "Request '%s' timed out after %s", 408)
	MsgRequestFailed          = ffe("FF10921", "Request '%s' failed at '%s' with code '%s': %s")
	MsgMissingClientConfig    = ffe("FF10922", "Missing configuration '%s' for the XRP ledger client")
	MsgRPCCallFailed          = ffe("FF10923", "JSON-RPC call '%s' failed: %s")
	MsgRPCRequestFailed       = ffe("FF10924", "Error from rippled JSON-RPC endpoint: %s")
	MsgNotConnected           = ffe("FF10925", "Plugin must be connected before this operation")
	MsgConfigFailed           = ffe("FF10926", "Failed to read configuration")
	MsgInvalidOutputOption    = ffe("FF10927", "Invalid output option '%s'")
)
