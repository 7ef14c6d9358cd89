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
	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/ffresty"
	"github.com/hyperledger/firefly-common/pkg/wsclient"
)

const (
	// ClientConfigAddress is the classic address of the local XRP account
	ClientConfigAddress = "address"
	// ClientConfigSecret is the signing secret for the local XRP account,
	// passed to the rippled sign method
	ClientConfigSecret = "secret"
)

// InitConfig extends a config section with the rippled connection options:
// the ffresty HTTP options for the JSON-RPC endpoint, the wsclient options
// for the validated-transaction stream, and the account keys
func InitConfig(conf config.Section) {
	ffresty.InitConfig(conf)
	wsclient.InitConfig(conf)
	conf.AddKnownKey(ClientConfigAddress)
	conf.AddKnownKey(ClientConfigSecret)
}
