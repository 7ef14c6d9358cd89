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

package pluginconfig

import (
	"github.com/hyperledger/firefly-common/pkg/config"
)

const (
	// XRPSection is the sub-section carrying the rippled connection, signing
	// secret and account address
	XRPSection = "xrp"
	// EscrowSection is the sub-section carrying the escrow lifecycle tuning
	EscrowSection = "escrow"
	// RPCSection is the sub-section carrying the request/response settings
	RPCSection = "rpc"
)

func setDefaults() {
}

// Reset clears the root configuration and re-applies defaults, for use at
// startup and between tests
func Reset() {
	config.RootConfigReset(setDefaults)
}
