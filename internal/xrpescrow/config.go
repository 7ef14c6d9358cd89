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
	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/ilp-go/xrpescrow/internal/pluginconfig"
	"github.com/ilp-go/xrpescrow/internal/xrpclient"
)

const (
	defaultLedgerPrefix  = "g.crypto.ripple."
	defaultCurrencyCode  = "XRP"
	defaultCurrencyScale = 6
)

const (
	// ConfigLedgerPrefix is the protocol address prefix of this ledger
	ConfigLedgerPrefix = "prefix"
	// ConfigCurrencyCode is the currency code reported by Info
	ConfigCurrencyCode = "currencyCode"
	// ConfigCurrencyScale is the currency scale reported by Info
	ConfigCurrencyScale = "currencyScale"

	// EscrowConfigCacheLimit is the maximum entry count of the creation and
	// terminal-transfer cache
	EscrowConfigCacheLimit = "cacheLimit"
	// EscrowConfigRetention is how long settled transfers and creation
	// records remain queryable
	EscrowConfigRetention = "retention"
	// EscrowConfigExpiryGrace is how long past a transfer's expiry the
	// cancellation waits, so the ledger is certain to accept it
	EscrowConfigExpiryGrace = "expiry.grace"
	// EscrowConfigExpiryRetryInitialDelay is the first retry delay for a
	// failed expiry cancellation
	EscrowConfigExpiryRetryInitialDelay = "expiry.retry.initialDelay"
	// EscrowConfigExpiryRetryMaxDelay is the backoff ceiling for expiry
	// cancellation retries
	EscrowConfigExpiryRetryMaxDelay = "expiry.retry.maxDelay"
	// EscrowConfigExpiryRetryFactor is the backoff factor for expiry
	// cancellation retries
	EscrowConfigExpiryRetryFactor = "expiry.retry.factor"
	// EscrowConfigExpiryRetryMaxAttempts caps expiry cancellation attempts
	// (zero means unbounded)
	EscrowConfigExpiryRetryMaxAttempts = "expiry.retry.maxAttempts"

	// RPCConfigDefaultTimeout is the request timeout applied when the caller
	// does not supply one
	RPCConfigDefaultTimeout = "defaultTimeout"
)

// InitConfig declares the configuration keys of the plugin
func (e *XRPEscrow) InitConfig(conf config.Section) {
	conf.AddKnownKey(ConfigLedgerPrefix, defaultLedgerPrefix)
	conf.AddKnownKey(ConfigCurrencyCode, defaultCurrencyCode)
	conf.AddKnownKey(ConfigCurrencyScale, defaultCurrencyScale)

	xrpclient.InitConfig(conf.SubSection(pluginconfig.XRPSection))

	escrowConf := conf.SubSection(pluginconfig.EscrowSection)
	escrowConf.AddKnownKey(EscrowConfigCacheLimit, 1000)
	escrowConf.AddKnownKey(EscrowConfigRetention, "24h")
	escrowConf.AddKnownKey(EscrowConfigExpiryGrace, "5s")
	escrowConf.AddKnownKey(EscrowConfigExpiryRetryInitialDelay, "1s")
	escrowConf.AddKnownKey(EscrowConfigExpiryRetryMaxDelay, "30s")
	escrowConf.AddKnownKey(EscrowConfigExpiryRetryFactor, 2.0)
	escrowConf.AddKnownKey(EscrowConfigExpiryRetryMaxAttempts, 0)

	rpcConf := conf.SubSection(pluginconfig.RPCSection)
	rpcConf.AddKnownKey(RPCConfigDefaultTimeout, "30s")
}
