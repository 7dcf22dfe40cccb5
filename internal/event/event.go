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

// Package event defines the decoded-row type consumed by the state
// machine and expression evaluator.
package event

import "github.com/cockroachdb/wf-reactor/internal/value"

// An Event is one decoded row: a field-name to Value mapping plus the
// event-time that produced it, in nanoseconds since the Unix epoch.
type Event struct {
	Fields    map[string]value.Value
	TimeNanos int64
}

// New constructs an empty Event at the given event time.
func New(timeNanos int64) Event {
	return Event{Fields: make(map[string]value.Value), TimeNanos: timeNanos}
}

// Get returns the field's Value and whether it is present. Absence is
// a first-class outcome throughout the expression language: missing
// fields short-circuit guards to false and reduce arithmetic to absent.
func (e Event) Get(name string) (value.Value, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// With returns a shallow copy of e with name set to v. Used by the
// executor to build synthetic evaluation contexts (scope keys, step
// labels, joined fields) without mutating the originating Event.
func (e Event) With(name string, v value.Value) Event {
	out := make(map[string]value.Value, len(e.Fields)+1)
	for k, val := range e.Fields {
		out[k] = val
	}
	out[name] = v
	return Event{Fields: out, TimeNanos: e.TimeNanos}
}
