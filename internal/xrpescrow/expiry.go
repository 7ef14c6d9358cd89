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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-common/pkg/retry"
)

// expiryScheduler arms one timer per prepared transfer, firing a grace period
// after the escrow's cancel-after time so the ledger is certain to regard it
// as expired. The firing attempts a cancellation, retrying while the ledger's
// rejection is transient.
type expiryScheduler struct {
	ctx         context.Context
	grace       time.Duration
	maxAttempts int
	retry       *retry.Retry
	cancel      func(ctx context.Context, transferID string) error
}

// arm schedules the cancellation attempt. The returned timer is handed to the
// store so settlement can stop it.
func (e *expiryScheduler) arm(transferID string, expiresAt time.Time) *time.Timer {
	delay := time.Until(expiresAt.Add(e.grace))
	if delay < 0 {
		delay = 0
	}
	log.L(e.ctx).Debugf("Transfer %s expires in %.2fs", transferID, delay.Seconds())
	return time.AfterFunc(delay, func() {
		e.expire(transferID)
	})
}

func (e *expiryScheduler) expire(transferID string) {
	err := e.retry.Do(e.ctx, fmt.Sprintf("cancel expired transfer %s", transferID), func(attempt int) (bool, error) {
		err := e.cancel(e.ctx, transferID)
		if err == nil {
			return false, nil
		}
		var notAccepted *NotAcceptedError
		if errors.As(err, &notAccepted) && !retryableEngineResult(notAccepted.EngineResult) {
			return false, err
		}
		canRetry := e.maxAttempts == 0 || attempt < e.maxAttempts
		return canRetry, err
	})
	if err != nil {
		// The transfer stays prepared; the peer's own cancellation, or a
		// restart, can still resolve it
		log.L(e.ctx).Errorf("Giving up cancelling expired transfer %s: %s", transferID, err)
	}
}
