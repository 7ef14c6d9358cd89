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

package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/ilp-go/xrpescrow/pkg/escrow"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

type utPlugin struct {
	initErr  error
	startErr error
}

func (p *utPlugin) Name() string                   { return "xrpescrow" }
func (p *utPlugin) InitConfig(conf config.Section) {}
func (p *utPlugin) Init(ctx context.Context, cancelCtx context.CancelFunc, conf config.Section, callbacks escrow.Callbacks) error {
	return p.initErr
}
func (p *utPlugin) Start() error                   { return p.startErr }
func (p *utPlugin) Stop()                          {}
func (p *utPlugin) Account() string                { return "g.crypto.ripple.rALICE" }
func (p *utPlugin) Info() *escrow.Info {
	return &escrow.Info{Prefix: "g.crypto.ripple.", CurrencyCode: "XRP", CurrencyScale: 6}
}
func (p *utPlugin) Balance(ctx context.Context) (string, error) { return "0", nil }
func (p *utPlugin) SendTransfer(ctx context.Context, transfer *escrow.Transfer) error { return nil }
func (p *utPlugin) FulfillCondition(ctx context.Context, transferID, fulfillment string) error {
	return nil
}
func (p *utPlugin) GetFulfillment(ctx context.Context, transferID string) (string, error) {
	return "", nil
}
func (p *utPlugin) SendMessage(ctx context.Context, msg *escrow.Message) error { return nil }
func (p *utPlugin) Request(ctx context.Context, msg *escrow.Message, timeout time.Duration) (fftypes.JSONObject, error) {
	return nil, nil
}
func (p *utPlugin) SetRequestHandler(handler escrow.RequestHandler) {}

var _ escrow.Plugin = (*utPlugin)(nil)

func TestGetPlugin(t *testing.T) {
	assert.NotNil(t, getPlugin())
}

func TestExecuteMissingConfig(t *testing.T) {
	_utPlugin = &utPlugin{}
	defer func() { _utPlugin = nil }()
	viper.Reset()
	rootCmd.SetArgs([]string{})
	cfgFile = "missing-config.yml"
	defer func() { cfgFile = "" }()
	err := Execute()
	assert.Regexp(t, "FF10926", err)
}

func TestExecutePluginInitFail(t *testing.T) {
	_utPlugin = &utPlugin{initErr: fmt.Errorf("splutter")}
	defer func() { _utPlugin = nil }()
	viper.Reset()
	rootCmd.SetArgs([]string{})
	err := Execute()
	assert.Regexp(t, "splutter", err)
}

func TestExecutePluginStartFail(t *testing.T) {
	_utPlugin = &utPlugin{startErr: fmt.Errorf("bang")}
	defer func() { _utPlugin = nil }()
	viper.Reset()
	rootCmd.SetArgs([]string{})
	err := Execute()
	assert.Regexp(t, "bang", err)
}

func TestExecuteExitsOnSIGINT(t *testing.T) {
	_utPlugin = &utPlugin{}
	defer func() { _utPlugin = nil }()
	viper.Reset()
	rootCmd.SetArgs([]string{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
	}()
	err := Execute()
	assert.NoError(t, err)
}
