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

// Package stopper implements cooperative goroutine lifecycle
// management: a context.Context that can be told to stop accepting new
// work (Stopping) and later to cancel outstanding work (Done), plus a
// errgroup.Group-like helper for tracking goroutines launched under it.
package stopper

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Context decorates a context.Context with two-phase shutdown: callers
// observing Stopping() should stop admitting new work and wind down on
// their own schedule. Done() fires only when the parent is cancelled or
// the CancelFunc returned by WithContext is called; it does not wait
// for goroutines launched via Go (Wait does that).
type Context struct {
	context.Context

	mu       sync.Mutex
	wg       sync.WaitGroup
	errs     []error
	stopping chan struct{}
	stopOnce sync.Once
}

// WithContext returns a new stopper.Context rooted at parent. Calling
// the returned context's Stop method begins the two-phase shutdown.
func WithContext(parent context.Context) (*Context, context.CancelFunc) {
	inner, cancel := context.WithCancel(parent)
	ctx := &Context{Context: inner, stopping: make(chan struct{})}
	return ctx, cancel
}

// Go launches fn in its own goroutine, tracked by Wait. The first
// non-nil error returned by any tracked goroutine is recorded and
// retrievable from Wait.
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		}
	}()
}

// Stop begins the two-phase shutdown: it closes the channel returned
// by Stopping, signalling that goroutines should stop admitting new
// work, without yet cancelling the underlying context.
func (c *Context) Stop() {
	c.stopOnce.Do(func() { close(c.stopping) })
}

// Stopping returns a channel that is closed once Stop has been called.
// Long-running loops select on this to begin a graceful drain.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Wait blocks until every goroutine launched via Go has returned, then
// returns the first error any of them reported, if any.
func (c *Context) Wait() error {
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return errors.Wrap(c.errs[0], "stopper: goroutine failed")
}
