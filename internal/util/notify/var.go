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

// Package notify provides a generic, coalescing value-watching
// primitive. The window Registry uses it to signal each Publish to a
// window, without requiring a channel per subscriber.
package notify

import "sync"

// Var holds a value of type T and allows any number of goroutines to
// efficiently wait for it to change. Unlike a plain channel, a Var
// never blocks the writer and coalesces any number of updates that
// happen between two reads by a slow consumer into a single wakeup.
type Var[T any] struct {
	mu      sync.Mutex
	value   T
	version int
	ch      chan struct{}
}

// VarOf constructs a Var with the given initial value.
func VarOf[T any](initial T) *Var[T] {
	return &Var[T]{value: initial, ch: make(chan struct{})}
}

// Get returns the current value and a channel that will be closed the
// next time the value changes. Callers should read the returned
// channel before re-checking the value, to avoid missing a wakeup that
// races with Get itself (enable-before-check).
func (v *Var[T]) Get() (T, <-chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.ch
}

// Set updates the value and wakes every goroutine currently waiting on
// a channel returned from Get. Set never blocks.
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	v.version++
	close(v.ch)
	v.ch = make(chan struct{})
}

// Update atomically applies fn to the current value and stores the
// result, waking any waiters. It is the preferred way to perform a
// read-modify-write without a separate external lock.
func (v *Var[T]) Update(fn func(old T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = fn(v.value)
	v.version++
	close(v.ch)
	v.ch = make(chan struct{})
	return v.value
}

// Peek returns the current value without a wakeup channel. Useful for
// metrics collection or logging where a stale read is acceptable.
func (v *Var[T]) Peek() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}
