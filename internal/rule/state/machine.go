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

package state

import (
	"sync"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

// AdvanceResult reports what Advance did to an instance.
type AdvanceResult struct {
	// Matched is true if ev matched some branch of the current step.
	Matched bool
	// StepCompleted is true if the match advanced the instance to its
	// next step (or closed a close-path step).
	StepCompleted bool
	// InstanceCompleted is true once every event step (sliding/fixed)
	// is done and the instance is ready to score/yield.
	InstanceCompleted bool
	// CloseOutput is populated when InstanceCompleted is true.
	CloseOutput CloseOutput
	// Key is the InstanceKey the event was matched against.
	Key InstanceKey
}

// Machine is the state machine for a single rule (C5): it owns every
// live Instance keyed by scope key (and, for fixed windows, bucket),
// and implements the event/close pattern matching, aggregation, and
// window-kind-specific completion semantics described in spec §4.2 and
// §4.5.
type Machine struct {
	RuleName string
	Plan     *plan.MatchPlan

	mu        sync.Mutex
	instances map[InstanceKey]*Instance

	metrics *metrics.RuleMetrics
}

// NewMachine constructs a Machine for the given rule's compiled match
// plan.
func NewMachine(ruleName string, mp *plan.MatchPlan) *Machine {
	return &Machine{
		RuleName:  ruleName,
		Plan:      mp,
		instances: make(map[InstanceKey]*Instance),
		metrics:   metrics.ForRule(ruleName),
	}
}

// Advance feeds one event, arriving from the given bind alias, through
// the machine. It extracts the scope key, looks up or creates the
// instance (sliding: one per scope key; fixed: one per scope key per
// bucket, derived from ev's event time and the window duration), and
// evaluates every branch of the instance's current step against ev.
func (m *Machine) Advance(ev event.Event, alias string) AdvanceResult {
	scopeKey, ok := ExtractKey(ev, m.Plan.Keys, m.Plan.KeyMap, alias)
	if !ok {
		return AdvanceResult{}
	}

	key := m.instanceKeyFor(scopeKey, ev.TimeNanos)

	m.mu.Lock()
	defer m.mu.Unlock()

	inst, existed := m.instances[key]
	if !existed {
		inst = NewInstance(m.Plan, scopeKey, ev.TimeNanos)
		m.instances[key] = inst
		m.metrics.InstancesActive.Set(float64(len(m.instances)))
	}

	return m.advanceInstance(inst, key, ev, alias)
}

func (m *Machine) instanceKeyFor(scopeKey []value.Value, eventTimeNanos int64) InstanceKey {
	if m.Plan.WindowSpec.Kind != plan.KindFixed {
		return Sliding(scopeKey)
	}
	dur := int64(m.Plan.WindowSpec.Duration)
	if dur <= 0 {
		return Sliding(scopeKey)
	}
	bucketStart := (eventTimeNanos / dur) * dur
	return Fixed(scopeKey, bucketStart)
}

func (m *Machine) advanceInstance(inst *Instance, key InstanceKey, ev event.Event, alias string) AdvanceResult {
	inst.LastActivityNanos = ev.TimeNanos
	if inst.CurrentStep >= len(m.Plan.EventSteps) {
		// Already complete; sliding instances are reset by retireLocked,
		// fixed/session instances are retired by ScanExpiredAt.
		return AdvanceResult{Key: key}
	}

	step := m.Plan.EventSteps[inst.CurrentStep]
	matched := matchStep(step, inst.StepStates[inst.CurrentStep], ev, alias, inst)
	if !matched {
		return AdvanceResult{Key: key}
	}

	inst.CompletedSteps = append(inst.CompletedSteps, stepDataFor(step, inst.StepStates[inst.CurrentStep]))
	inst.CurrentStep++
	result := AdvanceResult{Matched: true, StepCompleted: true, Key: key}

	if inst.CurrentStep >= len(m.Plan.EventSteps) {
		inst.EventOK = true
		if len(m.Plan.CloseSteps) == 0 {
			result.InstanceCompleted = true
			result.CloseOutput = m.closeOutputFor(inst)
			m.retireLocked(key)
		}
	}
	return result
}

// AdvanceClose feeds ev through the close-path steps of an
// already-event-complete instance. It is invoked separately from
// Advance because close steps read from a potentially different bind
// alias than the event path (spec §4.2's `on_close` clause).
func (m *Machine) AdvanceClose(ev event.Event, alias string) AdvanceResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, inst := range m.instances {
		if !inst.EventOK {
			continue
		}
		inst.LastActivityNanos = ev.TimeNanos
		closeStepIdx := closeProgress(inst)
		if closeStepIdx >= len(m.Plan.CloseSteps) {
			continue
		}
		step := m.Plan.CloseSteps[closeStepIdx]
		if !matchStep(step, inst.CloseStepStates[closeStepIdx], ev, alias, inst) {
			continue
		}
		result := AdvanceResult{Matched: true, StepCompleted: true, Key: key}
		if m.closeSatisfied(inst, closeStepIdx+1) {
			result.InstanceCompleted = true
			result.CloseOutput = m.closeOutputFor(inst)
			m.retireLocked(key)
		}
		return result
	}
	return AdvanceResult{}
}

// closeProgress reports how many close steps have matched so far,
// approximated by counting non-zero-count branch states; CloseAnd
// requires every step to report progress, CloseOr only the furthest.
func closeProgress(inst *Instance) int {
	n := 0
	for _, ss := range inst.CloseStepStates {
		any := false
		for _, bs := range ss.Branches {
			if bs.Count > 0 || len(bs.DistinctSet) > 0 {
				any = true
				break
			}
		}
		if any {
			n++
		} else {
			break
		}
	}
	return n
}

func (m *Machine) closeSatisfied(inst *Instance, progressed int) bool {
	if m.Plan.CloseMode == plan.CloseOr {
		return progressed > 0
	}
	return progressed >= len(m.Plan.CloseSteps)
}

func (m *Machine) closeOutputFor(inst *Instance) CloseOutput {
	eventSteps := make([]StepData, len(inst.CompletedSteps))
	copy(eventSteps, inst.CompletedSteps)

	var closeSteps []StepData
	for i, ss := range inst.CloseStepStates {
		if i >= closeProgress(inst) {
			break
		}
		closeSteps = append(closeSteps, stepDataFor(m.Plan.CloseSteps[i], ss))
	}

	return CloseOutput{
		ScopeKey:   inst.ScopeKey,
		EventSteps: eventSteps,
		CloseSteps: closeSteps,
	}
}

func (m *Machine) retireLocked(key InstanceKey) {
	switch m.Plan.WindowSpec.Kind {
	case plan.KindSliding:
		// Sliding windows restart matching from step 0 for the same
		// scope key rather than disappearing, so a new occurrence can
		// begin immediately.
		if inst, ok := m.instances[key]; ok {
			inst.Reset(m.Plan, inst.CreatedAtNanos)
			return
		}
	default:
		delete(m.instances, key)
		m.metrics.InstancesActive.Set(float64(len(m.instances)))
	}
}

// ScanExpiredAt retires every instance whose last-activity time
// (session windows: inactivity gap; fixed windows: bucket end) is at
// or before nowNanos, returning their close outputs. Sliding windows
// never expire via this path — only via explicit per-event step
// completion.
func (m *Machine) ScanExpiredAt(nowNanos int64) []CloseOutput {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CloseOutput
	dur := int64(m.Plan.WindowSpec.Duration)

	for key, inst := range m.instances {
		var expired bool
		switch m.Plan.WindowSpec.Kind {
		case plan.KindFixed:
			expired = key.HasBucket && key.BucketStart+dur <= nowNanos
		case plan.KindSession:
			expired = nowNanos-inst.LastActivityNanos >= dur
		default:
			expired = false
		}
		if !expired {
			continue
		}
		out = append(out, m.closeOutputFor(inst))
		delete(m.instances, key)
	}
	m.metrics.InstancesActive.Set(float64(len(m.instances)))
	return out
}

// InstanceCount returns the number of live instances, for limits
// enforcement (spec §4.1's limits block) and metrics.
func (m *Machine) InstanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// EvictOldest removes the single oldest-created instance, for
// limits.max_instances's evict_oldest policy.
func (m *Machine) EvictOldest() (InstanceKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldestKey InstanceKey
	var oldestInst *Instance
	for key, inst := range m.instances {
		if oldestInst == nil || inst.CreatedAtNanos < oldestInst.CreatedAtNanos {
			oldestKey, oldestInst = key, inst
		}
	}
	if oldestInst == nil {
		return InstanceKey{}, false
	}
	delete(m.instances, oldestKey)
	m.metrics.InstancesActive.Set(float64(len(m.instances)))
	m.metrics.InstancesEvicted.Inc()
	return oldestKey, true
}

func stepDataFor(step plan.Step, ss StepState) StepData {
	// A step's reported label/measure is taken from the branch that
	// actually matched; matchStep leaves exactly one branch's count
	// freshly incremented in the common (unlabeled, single-branch)
	// case, so the first branch with a nonzero accumulation wins.
	for i, br := range step.Branches {
		bs := ss.Branches[i]
		if bs.Count == 0 && len(bs.DistinctSet) == 0 {
			continue
		}
		return StepData{
			Label:        br.Label,
			HasLabel:     br.HasLabel(),
			MeasureValue: bs.Measure(br.Measure),
		}
	}
	return StepData{}
}
