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
	"sync"
	"time"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/ilp-go/xrpescrow/internal/translator"
	"github.com/ilp-go/xrpescrow/pkg/escrow"
	"github.com/karlseguin/ccache"
)

type transferState int

const (
	statePrepared transferState = iota
	stateFulfilled
	stateCancelled
)

// transferRecord is the in-memory lifecycle state of one transfer. Terminal
// records move out of the active maps into the TTL cache, so callers can still
// query recent outcomes without the maps growing forever.
type transferRecord struct {
	transfer    *escrow.Transfer
	owner       string
	sequence    uint32
	locator     string
	fulfillment string
	state       transferState
	expiry      *time.Timer
}

func (r *transferRecord) terminal() bool {
	return r.state != statePrepared
}

// store holds all engine state: active transfers indexed by id and by escrow
// locator, sender-local notes, and a shared TTL cache for creation records
// and retained terminal transfers.
//
// It implements translator.State.
type store struct {
	mux       sync.Mutex
	active    map[string]*transferRecord
	byLocator map[string]string
	notes     map[string]*fftypes.JSONAny
	cache     *ccache.Cache
	retention time.Duration
}

func newStore(cacheLimit int64, retention time.Duration) *store {
	return &store{
		active:    make(map[string]*transferRecord),
		byLocator: make(map[string]string),
		notes:     make(map[string]*fftypes.JSONAny),
		cache:     ccache.New(ccache.Configure().MaxSize(cacheLimit)),
		retention: retention,
	}
}

func (s *store) GetCreation(key string) *translator.CreationRecord {
	if cached := s.cache.Get("c/" + key); cached != nil && !cached.Expired() {
		return cached.Value().(*translator.CreationRecord)
	}
	return nil
}

func (s *store) SetCreation(key string, rec *translator.CreationRecord) {
	s.cache.Set("c/"+key, rec, s.retention)
}

func (s *store) NoteToSelf(transferID string) *fftypes.JSONAny {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.notes[transferID]
}

func (s *store) setNote(transferID string, note *fftypes.JSONAny) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if note != nil {
		s.notes[transferID] = note
	}
}

// prepared records a validated escrow creation. Returns false if the transfer
// is already known, so a replayed event does not re-fire callbacks.
func (s *store) prepared(ev *translator.TransferEvent) (*transferRecord, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	id := ev.Transfer.ID
	if _, ok := s.active[id]; ok {
		return nil, false
	}
	if cached := s.cache.Get("t/" + id); cached != nil && !cached.Expired() {
		return nil, false
	}
	rec := &transferRecord{
		transfer: ev.Transfer,
		owner:    ev.Owner,
		sequence: ev.Sequence,
		locator:  ev.Locator,
	}
	s.active[id] = rec
	s.byLocator[ev.Locator] = id
	return rec, true
}

// get looks a transfer up by id, in the active maps first then the retained
// terminal records
func (s *store) get(transferID string) *transferRecord {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.getLocked(transferID)
}

func (s *store) getLocked(transferID string) *transferRecord {
	if rec, ok := s.active[transferID]; ok {
		return rec
	}
	if cached := s.cache.Get("t/" + transferID); cached != nil && !cached.Expired() {
		return cached.Value().(*transferRecord)
	}
	return nil
}

// settle moves a transfer into a terminal state. The first settlement wins:
// a second call for the same transfer returns nil, and the caller fires no
// callback.
func (s *store) settle(transferID string, state transferState, fulfillment string) *transferRecord {
	s.mux.Lock()
	defer s.mux.Unlock()
	rec := s.getLocked(transferID)
	if rec == nil || rec.terminal() {
		return nil
	}
	rec.state = state
	rec.fulfillment = fulfillment
	if rec.expiry != nil {
		rec.expiry.Stop()
		rec.expiry = nil
	}
	delete(s.active, transferID)
	delete(s.byLocator, rec.locator)
	delete(s.notes, transferID)
	s.cache.Set("t/"+transferID, rec, s.retention)
	return rec
}

func (s *store) armExpiry(transferID string, timer *time.Timer) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if rec, ok := s.active[transferID]; ok {
		rec.expiry = timer
	} else {
		timer.Stop()
	}
}
