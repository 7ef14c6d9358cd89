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

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/ilp-go/xrpescrow/internal/escrowmsgs"
)

type submitJob struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// submitQueue serializes every sequence-consuming submission through a single
// writer goroutine. The account sequence is read fresh per job, so two
// concurrent submissions can never race each other onto the same sequence
// number.
type submitQueue struct {
	ctx  context.Context
	jobs chan *submitJob
}

func newSubmitQueue(ctx context.Context) *submitQueue {
	q := &submitQueue{
		ctx:  ctx,
		jobs: make(chan *submitJob),
	}
	go q.writerLoop()
	return q
}

func (q *submitQueue) writerLoop() {
	l := log.L(q.ctx).WithField("role", "submit-writer")
	for {
		select {
		case <-q.ctx.Done():
			l.Debugf("Submit writer exiting")
			return
		case job := <-q.jobs:
			job.done <- job.run(job.ctx)
		}
	}
}

// enqueue schedules one submission and blocks until it completes. Each job
// runs to completion before the next starts.
func (q *submitQueue) enqueue(ctx context.Context, run func(ctx context.Context) error) error {
	job := &submitJob{
		ctx:  ctx,
		run:  run,
		done: make(chan error, 1),
	}
	select {
	case q.jobs <- job:
	case <-ctx.Done():
		return i18n.NewError(ctx, escrowmsgs.MsgSubmissionAborted, "unsubmitted")
	case <-q.ctx.Done():
		return i18n.NewError(q.ctx, escrowmsgs.MsgSubmitQueueClosed)
	}
	select {
	case err := <-job.done:
		return err
	case <-q.ctx.Done():
		return i18n.NewError(q.ctx, escrowmsgs.MsgSubmitQueueClosed)
	}
}
