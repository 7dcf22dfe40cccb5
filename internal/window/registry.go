// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/util/notify"
)

// Registry owns every named Buffer in the engine and publishes a
// coalescing "something changed" signal per window, exposed through
// Await (C3).
type Registry struct {
	mu      sync.RWMutex
	buffers map[string]*Buffer
	signals map[string]*notify.Var[uint64]
	closed  map[string]bool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		buffers: make(map[string]*Buffer),
		signals: make(map[string]*notify.Var[uint64]),
		closed:  make(map[string]bool),
	}
}

// Declare registers a window under name with cfg, returning its
// Buffer. Declaring an already-registered name is a no-op that
// returns the existing Buffer; window configs are immutable once
// running.
func (r *Registry) Declare(name string, cfg Config) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buffers[name]; ok {
		return b
	}
	b := NewBuffer(name, cfg)
	r.buffers[name] = b
	r.signals[name] = notify.VarOf[uint64](0)
	return b
}

// Lookup returns the named Buffer, or (nil, false) if no window with
// that name was declared.
func (r *Registry) Lookup(name string) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buffers[name]
	return b, ok
}

// MustLookup is Lookup but panics on an unknown name; it is intended
// for call sites downstream of plan validation, where an unknown
// window name is a programming error, not a runtime condition.
func (r *Registry) MustLookup(name string) *Buffer {
	b, ok := r.Lookup(name)
	if !ok {
		panic(errors.Errorf("window: no such window %q", name))
	}
	return b
}

// Publish appends batch to the named window (with watermark handling)
// and wakes every waiter registered via Await for that window.
func (r *Registry) Publish(name string, batch Batch) (AppendOutcome, error) {
	r.mu.RLock()
	closed := r.closed[name]
	b, ok := r.buffers[name]
	sig := r.signals[name]
	r.mu.RUnlock()
	if !ok {
		return AppendOutcomeDroppedLate, errors.Errorf("window: no such window %q", name)
	}
	if closed {
		return AppendOutcomeDroppedLate, errClosed
	}
	outcome, err := b.AppendWithWatermark(batch)
	if err != nil {
		return outcome, err
	}
	sig.Update(func(v uint64) uint64 { return v + 1 })
	return outcome, nil
}

// Await returns the named window's current generation and a channel
// that is closed on the next Publish to that window, for callers that
// want to block until new data arrives instead of polling.
func (r *Registry) Await(name string) (uint64, <-chan struct{}, error) {
	r.mu.RLock()
	sig, ok := r.signals[name]
	r.mu.RUnlock()
	if !ok {
		return 0, nil, errors.Errorf("window: no such window %q", name)
	}
	gen, ch := sig.Get()
	return gen, ch, nil
}

// Names returns every declared window name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.buffers))
	for n := range r.buffers {
		out = append(out, n)
	}
	return out
}

// Close marks name as closed: subsequent Publish calls return
// errClosed. The buffer's existing contents remain readable via
// Lookup, so in-flight rule evaluations can still drain it.
func (r *Registry) Close(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[name] = true
}
