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

// Package window implements the windowed event buffer (C2) and the
// window registry/router (C3): a time-ordered, per-window store of
// event batches with watermark-driven lateness handling and
// cursor-based readers.
package window

import "github.com/cockroachdb/wf-reactor/internal/event"

// Batch is a contiguous, ordered run of events appended to a window in
// a single call. Unlike the teacher domain's columnar Arrow
// RecordBatch, a Batch here is a thin slice wrapper: the engine's
// per-event payloads are small structured records, not bulk columnar
// data, so a slice of event.Event carries no meaningful serialization
// or vectorization benefit over Arrow's buffer-sharing model.
type Batch struct {
	Events []event.Event
}

// timeRange returns the (min, max) event time in nanoseconds spanned by
// b, or (math.MaxInt64, math.MinInt64) if b is empty (an empty range
// that can never make a window's watermark regress).
func (b Batch) timeRange() (min, max int64) {
	if len(b.Events) == 0 {
		return int64(1<<63 - 1), -(1 << 63)
	}
	min, max = b.Events[0].TimeNanos, b.Events[0].TimeNanos
	for _, e := range b.Events[1:] {
		if e.TimeNanos < min {
			min = e.TimeNanos
		}
		if e.TimeNanos > max {
			max = e.TimeNanos
		}
	}
	return min, max
}

// ByteSize estimates b's retained memory footprint for the evictor's
// memory-pressure accounting. It is an estimate, not an exact count:
// the point is relative comparability between batches, not precision.
func (b Batch) ByteSize() int {
	const perEventOverhead = 64
	total := 0
	for _, e := range b.Events {
		total += perEventOverhead
		for k, v := range e.Fields {
			total += len(k) + 16
			if s, ok := v.AsString(); ok {
				total += len(s)
			}
		}
	}
	return total
}

// timedBatch is a Batch plus the bookkeeping a buffer tracks per
// append: its event-time span, byte size, and append sequence number.
type timedBatch struct {
	batch         Batch
	minTime       int64
	maxTime       int64
	byteSize      int
	seq           uint64
}
