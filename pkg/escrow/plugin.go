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

// Package escrow defines the contract between a conditional-payment ledger
// plugin and its caller: the transfer/message records, the operations the
// caller may invoke, and the callbacks through which validated ledger
// activity is surfaced.
package escrow

import (
	"context"
	"time"

	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
)

// Direction of a transfer or message relative to the local account
type Direction string

const (
	// DirectionIncoming means the local account is the destination
	DirectionIncoming Direction = "incoming"
	// DirectionOutgoing means the local account created the transaction
	DirectionOutgoing Direction = "outgoing"
)

// Transfer is the unit of conditional value movement. Amount is carried in
// ledger-native integer units (drops) untouched - scale conversion is the
// sender's concern.
type Transfer struct {
	ID                 string           `json:"id"`
	To                 string           `json:"to"`
	From               string           `json:"from,omitempty"`
	Ledger             string           `json:"ledger,omitempty"`
	Direction          Direction        `json:"direction,omitempty"`
	Amount             string           `json:"amount"`
	ILP                string           `json:"ilp,omitempty"`
	ExecutionCondition string           `json:"executionCondition"`
	ExpiresAt          *fftypes.FFTime  `json:"expiresAt"`
	NoteToSelf         *fftypes.JSONAny `json:"noteToSelf,omitempty"`
}

// Message is a point-to-point datagram smuggled through the ledger as a
// minimal payment with a memo
type Message struct {
	ID        *fftypes.UUID      `json:"id,omitempty"`
	To        string             `json:"to"`
	From      string             `json:"from,omitempty"`
	Ledger    string             `json:"ledger,omitempty"`
	Direction Direction          `json:"direction,omitempty"`
	Data      fftypes.JSONObject `json:"data"`
}

// Info describes the ledger this plugin adapts
type Info struct {
	Prefix        string `json:"prefix"`
	CurrencyCode  string `json:"currencyCode"`
	CurrencyScale int    `json:"currencyScale"`
}

// RequestHandler is invoked for each inbound message that is a request (not a
// response to something this engine sent). The returned object becomes the
// response payload.
type RequestHandler func(ctx context.Context, msg *Message) (fftypes.JSONObject, error)

// Plugin is the interface implemented by each conditional-payment ledger
// plugin
type Plugin interface {
	// Name returns the name of the plugin
	Name() string

	// InitConfig initializes the set of configuration options that are valid, with defaults
	InitConfig(conf config.Section)

	// Init initializes the plugin, with configuration
	Init(ctx context.Context, cancelCtx context.CancelFunc, conf config.Section, callbacks Callbacks) error

	// Start connects to the ledger and subscribes to validated-transaction
	// events for the local account. No callbacks are delivered before Start.
	Start() error

	// Stop disconnects from the ledger and halts event dispatch
	Stop()

	// Account returns the prefix-qualified protocol address of the local account
	Account() string

	// Info returns the ledger prefix and currency denomination
	Info() *Info

	// Balance returns the local account balance in ledger-native units
	Balance(ctx context.Context) (string, error)

	// SendTransfer creates an on-ledger escrow holding the transfer amount
	// until its execution condition is fulfilled or it expires. Resolves once
	// the creation transaction is validated.
	SendTransfer(ctx context.Context, transfer *Transfer) error

	// FulfillCondition reveals the preimage unlocking a prepared transfer.
	// Resolves once the finish transaction is validated.
	FulfillCondition(ctx context.Context, transferID, fulfillment string) error

	// GetFulfillment returns the revealed fulfillment of an executed transfer.
	// Fails distinctly for transfers never seen, already rolled back, or
	// still pending.
	GetFulfillment(ctx context.Context, transferID string) (string, error)

	// SendMessage delivers a message to another account on the same ledger
	SendMessage(ctx context.Context, msg *Message) error

	// Request sends a message and blocks until a correlated response arrives,
	// or the timeout pops (zero means the configured default)
	Request(ctx context.Context, msg *Message, timeout time.Duration) (fftypes.JSONObject, error)

	// SetRequestHandler installs the single handler for inbound requests
	SetRequestHandler(handler RequestHandler)
}

// Callbacks is the interface provided to the plugin, to allow it to pass
// events back to its caller.
//
// Events are delivered sequentially - handling of one validated ledger event
// completes before the next is dispatched.
type Callbacks interface {
	// Connected fires once the ledger subscription is established
	Connected()

	// TransferPrepared fires when an escrow creation is validated, in either
	// direction
	TransferPrepared(transfer *Transfer)

	// TransferFulfilled fires when an escrow finish is validated, carrying
	// the revealed fulfillment preimage (base64url)
	TransferFulfilled(transfer *Transfer, fulfillment string)

	// TransferCancelled fires when an escrow cancellation is validated
	TransferCancelled(transfer *Transfer)

	// MessageReceived fires for each validated message payment, in either
	// direction
	MessageReceived(msg *Message)
}
