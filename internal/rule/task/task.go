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

// Package task implements the Rule Task (C6): one goroutine per
// compiled rule that drains its bound windows in seq order, advances
// the rule's state machine, periodically sweeps for close-path expiry,
// and forwards fired alerts to the bounded alert channel. Its drain
// loop runs once at start and then once per sweep tick; it does not
// wait on the Registry's per-window Await signal, so data published
// between ticks is read at the next tick.
package task

import (
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/rule/executor"
	"github.com/cockroachdb/wf-reactor/internal/rule/state"
	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// Task drains a single compiled rule's bound windows and fires alerts.
type Task struct {
	Plan     *plan.RulePlan
	Registry *window.Registry
	AlertCh  chan<- executor.Alert

	// Limiter bounds how many tasks' drain passes execute at once
	// (EngineConfig.ExecutorParallelism); nil means unbounded. It is
	// shared across every Task in an Engine, not owned per-task.
	Limiter *semaphore.Weighted

	machine    *state.Machine
	exec       *executor.Executor
	cursors    map[string]uint64 // bind alias -> next-seq cursor into its window
	metrics    *metrics.RuleMetrics
	sweepEvery time.Duration
}

// New constructs a Task for rp. sweepEvery bounds how often ScanExpiredAt
// runs for session/fixed close semantics, and is also the interval
// between drain passes (see Run); the engine passes
// EngineConfig.SweepInterval for every task.
func New(rp *plan.RulePlan, registry *window.Registry, alertCh chan<- executor.Alert, sweepEvery time.Duration) *Task {
	return &Task{
		Plan:       rp,
		Registry:   registry,
		AlertCh:    alertCh,
		machine:    state.NewMachine(rp.Name, &rp.Match),
		exec:       executor.New(rp, registry),
		cursors:    make(map[string]uint64),
		metrics:    metrics.ForRule(rp.Name),
		sweepEvery: sweepEvery,
	}
}

// Run drives the task's drain loop until ctx signals Stopping, draining
// once at start and once per sweep tick. On Stopping it flushes every
// still-live session and fixed instance with origin close:eos before
// returning (spec §5's shutdown ordering: rule tasks flush before the
// alert dispatcher drains); live sliding instances are not flushed.
func (t *Task) Run(ctx *stopper.Context) error {
	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()

	for {
		if err := t.drainOnceLimited(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Stopping():
			t.flushOnShutdown()
			return nil
		case <-ticker.C:
			t.sweepExpired()
		}
	}
}

// drainOnceLimited runs drainOnce, acquiring a slot from Limiter first
// if one is set. It returns an error only if ctx is cancelled while
// waiting for a slot.
func (t *Task) drainOnceLimited(ctx *stopper.Context) error {
	if t.Limiter == nil {
		t.drainOnce()
		return nil
	}
	if err := t.Limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	defer t.Limiter.Release(1)
	t.drainOnce()
	return nil
}

// drainOnce reads every bound window once, advancing the state machine
// for each new event in seq order, and forwards any completed
// instances as fired alerts.
func (t *Task) drainOnce() {
	for _, bind := range t.Plan.Binds {
		buf, ok := t.Registry.Lookup(bind.WindowName)
		if !ok {
			continue
		}
		cursor := t.cursors[bind.Alias]
		batches, next, gap := buf.ReadSince(cursor)
		if gap {
			metrics.ForWindow(bind.WindowName).CursorGaps.Inc()
			log.WithFields(log.Fields{"rule": t.Plan.Name, "window": bind.WindowName}).
				Warn("rule task cursor fell behind eviction; data was lost")
		}
		t.cursors[bind.Alias] = next

		for _, batch := range batches {
			for _, ev := range batch.Events {
				if bind.Filter != nil && !passesFilter(bind.Filter, ev) {
					continue
				}
				result := t.machine.Advance(ev, bind.Alias)
				if len(t.Plan.Match.CloseSteps) > 0 && result.Matched && !result.InstanceCompleted {
					// on_event matching may also feed on_close progress
					// for instances that already completed their event
					// path; try the close path too.
					t.machine.AdvanceClose(ev, bind.Alias)
				}
				if result.InstanceCompleted {
					if alert, ok := t.exec.FireFromAdvance(result, ev.TimeNanos); ok {
						t.send(alert)
					}
				}
			}
		}
	}
	t.enforceLimits()
}

func (t *Task) sweepExpired() {
	now := time.Now().UnixNano()
	outputs := t.machine.ScanExpiredAt(now)
	if len(outputs) == 0 {
		return
	}
	for _, alert := range t.exec.FireFromExpiry(outputs, now) {
		t.send(alert)
	}
}

func (t *Task) flushOnShutdown() {
	now := time.Now().UnixNano()
	outputs := t.machine.ScanExpiredAt(now + int64(t.Plan.Match.WindowSpec.Duration) + 1)
	if len(outputs) == 0 {
		return
	}
	for _, alert := range t.exec.FireFromShutdown(outputs, now) {
		t.send(alert)
	}
}

// enforceLimits applies the rule's limits.max_instances policy, per
// spec §4.1: evict_oldest removes the oldest-created instance until
// the count is within the limit; throttle and reject take no action
// here, so the instance count may stay above the limit.
func (t *Task) enforceLimits() {
	t.metrics.InstancesActive.Set(float64(t.machine.InstanceCount()))

	lim := t.Plan.Limits
	if lim == nil || lim.MaxInstances <= 0 {
		return
	}
	for t.machine.InstanceCount() > lim.MaxInstances {
		switch lim.OnExceed {
		case plan.OnExceedEvictOldest:
			if _, ok := t.machine.EvictOldest(); !ok {
				return
			}
		default:
			return
		}
	}
	t.metrics.InstancesActive.Set(float64(t.machine.InstanceCount()))
}

// InstanceCount reports the number of live instances this task's state
// machine currently holds, for tests and diagnostics.
func (t *Task) InstanceCount() int {
	return t.machine.InstanceCount()
}

// DrainOnce runs a single drain pass over every bound window. Exported
// for tests; Run calls it in a loop.
func (t *Task) DrainOnce() {
	t.drainOnce()
}

// FlushOnShutdown forces every live session and fixed instance to close
// with origin close:eos; sliding instances are left as they are.
// Exported for tests; Run calls it once on Stopping.
func (t *Task) FlushOnShutdown() {
	t.flushOnShutdown()
}

// send forwards alert to the bounded alert channel, blocking if it is
// full: backpressure here propagates to this task's drain loop, which
// is exactly spec §5's documented shared-resource policy.
func (t *Task) send(alert executor.Alert) {
	t.AlertCh <- alert
}

// passesFilter reports whether ev satisfies a bind's optional filter
// expression. An absent or non-boolean result excludes the event, the
// same short-circuit-to-false convention guards use throughout the
// expression language.
func passesFilter(filter *expr.Expr, ev event.Event) bool {
	v, ok := expr.Eval(filter, ev)
	b, isBool := v.AsBool()
	return ok && isBool && b
}
