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

// Package evict implements the Evictor (C4): a background sweep over
// every declared window that enforces time-based retention. Per-append
// memory eviction already happens inline in window.Buffer.Append; this
// package covers the half that append-time eviction cannot: windows
// that receive no new data yet still need their expired tail trimmed.
package evict

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// Report summarizes one sweep across every window.
type Report struct {
	// PerWindow maps window name to the number of batches it evicted
	// this sweep.
	PerWindow map[string]int
	// TotalBatches is the sum of PerWindow.
	TotalBatches int
}

// Evictor periodically calls EvictExpired on every window known to a
// Registry.
type Evictor struct {
	registry *window.Registry
	interval time.Duration

	// nowNanos supplies the current time; overridable in tests.
	nowNanos func() int64
}

// New constructs an Evictor that sweeps registry every interval.
func New(registry *window.Registry, interval time.Duration) *Evictor {
	return &Evictor{
		registry: registry,
		interval: interval,
		nowNanos: func() int64 { return time.Now().UnixNano() },
	}
}

// Sweep runs one eviction pass across every window and returns a
// Report describing what it evicted.
func (ev *Evictor) Sweep() Report {
	now := ev.nowNanos()
	report := Report{PerWindow: make(map[string]int)}
	for _, name := range ev.registry.Names() {
		buf, ok := ev.registry.Lookup(name)
		if !ok {
			continue
		}
		n := buf.EvictExpired(now)
		if n > 0 {
			report.PerWindow[name] = n
			report.TotalBatches += n
		}
	}
	return report
}

// Run launches the periodic sweep loop under ctx, returning once
// ctx.Stopping() fires. It is started via
// ctx.Go(func() error { return evictor.Run(ctx) }).
func (ev *Evictor) Run(ctx *stopper.Context) error {
	ticker := time.NewTicker(ev.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Stopping():
			return nil
		case <-ticker.C:
			report := ev.Sweep()
			if report.TotalBatches > 0 {
				log.WithField("batches", report.TotalBatches).Trace("evictor sweep")
			}
		}
	}
}
