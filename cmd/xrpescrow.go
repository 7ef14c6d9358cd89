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
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperledger/firefly-common/pkg/config"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
	"github.com/ilp-go/xrpescrow/internal/pluginconfig"
	"github.com/ilp-go/xrpescrow/internal/xrpescrow"
	"github.com/ilp-go/xrpescrow/pkg/escrow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "xrpescrow",
	Short: "XRP Ledger escrow plugin for conditional interledger payments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "file", "f", "", "config file")
}

// Execute is called by the main method of the package
func Execute() error {
	return rootCmd.Execute()
}

// loggingCallbacks surfaces plugin events to the log when the binary runs
// standalone, without an embedding connector
type loggingCallbacks struct {
	ctx context.Context
}

func (lc *loggingCallbacks) Connected() {
	log.L(lc.ctx).Infof("Ledger subscription established")
}

func (lc *loggingCallbacks) TransferPrepared(transfer *escrow.Transfer) {
	log.L(lc.ctx).Infof("Transfer %s prepared (%s, %s drops)", transfer.ID, transfer.Direction, transfer.Amount)
}

func (lc *loggingCallbacks) TransferFulfilled(transfer *escrow.Transfer, fulfillment string) {
	log.L(lc.ctx).Infof("Transfer %s fulfilled with %s", transfer.ID, fulfillment)
}

func (lc *loggingCallbacks) TransferCancelled(transfer *escrow.Transfer) {
	log.L(lc.ctx).Infof("Transfer %s cancelled", transfer.ID)
}

func (lc *loggingCallbacks) MessageReceived(msg *escrow.Message) {
	log.L(lc.ctx).Infof("Message %s from %s", msg.ID, msg.From)
}

// Unit test only
var _utPlugin escrow.Plugin

func getPlugin() escrow.Plugin {
	if _utPlugin != nil {
		return _utPlugin
	}
	return &xrpescrow.XRPEscrow{}
}

func run() error {
	pluginconfig.Reset()
	plugin := getPlugin()
	section := config.RootSection(plugin.Name())
	plugin.InitConfig(section)

	err := config.ReadConfig(plugin.Name(), cfgFile)

	// Setup logging after reading config (even if failed), to output header correctly
	ctx := log.WithLogger(context.Background(), logrus.WithField("pid", os.Getpid()))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	config.SetupLogging(ctx)
	log.L(ctx).Infof("XRP escrow plugin")

	// Deferred error return from reading config
	if err != nil {
		return i18n.WrapError(ctx, err, escrowmsgs.MsgConfigFailed)
	}

	if err := plugin.Init(ctx, cancel, section, &loggingCallbacks{ctx: ctx}); err != nil {
		return err
	}
	if err := plugin.Start(); err != nil {
		return err
	}
	log.L(ctx).Infof("Listening as %s", plugin.Account())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-sigs:
		log.L(ctx).Infof("Shutting down on %s", sig.String())
	case <-ctx.Done():
		log.L(ctx).Infof("Shutting down")
	}
	plugin.Stop()
	return nil
}
