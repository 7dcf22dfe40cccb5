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
	"math"

	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

// BranchState accumulates one branch's aggregate across the events
// that have matched it so far.
type BranchState struct {
	Count       uint64
	Sum         float64
	Min         float64
	Max         float64
	MinVal      value.Value
	HasMinVal   bool
	MaxVal      value.Value
	HasMaxVal   bool
	AvgSum      float64
	AvgCount    uint64
	DistinctSet map[string]struct{}
}

// NewBranchState returns a zeroed BranchState ready to accumulate.
func NewBranchState() BranchState {
	return BranchState{
		Min:         math.Inf(1),
		Max:         math.Inf(-1),
		DistinctSet: make(map[string]struct{}),
	}
}

// Apply folds one matched value into bs according to transform and
// measure, per spec §4.2's aggregation rules: Transform runs first (so
// Distinct+Count counts unique occurrences), then the folded value
// feeds every measure's running statistic so a later measure-compare
// can re-read any of them without re-aggregating.
func (bs *BranchState) Apply(v value.Value, transform plan.Transform) {
	if transform == plan.TransformDistinct {
		key := valueToString(v)
		if _, dup := bs.DistinctSet[key]; dup {
			return
		}
		bs.DistinctSet[key] = struct{}{}
	}

	bs.Count++
	if n, ok := value.Numeric(v); ok {
		bs.Sum += n
		if n < bs.Min {
			bs.Min = n
		}
		if n > bs.Max {
			bs.Max = n
		}
		bs.AvgSum += n
		bs.AvgCount++
	}
	if !bs.HasMinVal || value.Compare(v, bs.MinVal) < 0 {
		bs.MinVal, bs.HasMinVal = v, true
	}
	if !bs.HasMaxVal || value.Compare(v, bs.MaxVal) > 0 {
		bs.MaxVal, bs.HasMaxVal = v, true
	}
}

// Measure returns the branch's current value for measure.
func (bs *BranchState) Measure(measure plan.Measure) float64 {
	switch measure {
	case plan.MeasureCount:
		if len(bs.DistinctSet) > 0 {
			return float64(len(bs.DistinctSet))
		}
		return float64(bs.Count)
	case plan.MeasureSum:
		return bs.Sum
	case plan.MeasureAvg:
		if bs.AvgCount == 0 {
			return 0
		}
		return bs.AvgSum / float64(bs.AvgCount)
	case plan.MeasureMin:
		if math.IsInf(bs.Min, 1) {
			return 0
		}
		return bs.Min
	case plan.MeasureMax:
		if math.IsInf(bs.Max, -1) {
			return 0
		}
		return bs.Max
	default:
		return 0
	}
}

// StepState holds one StepState per branch of a Step.
type StepState struct {
	Branches []BranchState
}

// NewStepState allocates branchCount zeroed BranchStates.
func NewStepState(branchCount int) StepState {
	bs := make([]BranchState, branchCount)
	for i := range bs {
		bs[i] = NewBranchState()
	}
	return StepState{Branches: bs}
}

// RollingStats is an online mean/variance accumulator (Welford's
// method) used to answer baseline(field, window_secs) queries: how
// many standard deviations the current value is from the field's
// historical mean within this instance.
type RollingStats struct {
	count int64
	mean  float64
	m2    float64
}

// Observe folds x into the running statistics.
func (r *RollingStats) Observe(x float64) {
	r.count++
	delta := x - r.mean
	r.mean += delta / float64(r.count)
	delta2 := x - r.mean
	r.m2 += delta * delta2
}

// ZScore returns how many standard deviations x is from the running
// mean, or 0 if fewer than two observations have been made.
func (r *RollingStats) ZScore(x float64) float64 {
	if r.count < 2 {
		return 0
	}
	variance := r.m2 / float64(r.count-1)
	if variance <= 0 {
		return 0
	}
	return (x - r.mean) / math.Sqrt(variance)
}

// StepData records one completed step's label and the measure value
// it matched at, for later use by join fields, score/entity/yield
// expressions, and conv sort/dedup contexts.
type StepData struct {
	Label        string
	HasLabel     bool
	MeasureValue float64
}

// Instance is one live occurrence of a rule's scope key: its
// progress through the event pattern, its per-branch accumulators, and
// (once it starts matching close steps) its close-path progress.
type Instance struct {
	ScopeKey          []value.Value
	CreatedAtNanos    int64
	LastActivityNanos int64
	CurrentStep       int
	EventOK           bool
	StepStates        []StepState
	CompletedSteps    []StepData
	CloseStepStates   []StepState
	Baselines         map[string]*RollingStats
}

// NewInstance allocates a fresh Instance for mp's step shapes.
func NewInstance(mp *plan.MatchPlan, scopeKey []value.Value, nowNanos int64) *Instance {
	inst := &Instance{
		ScopeKey:          scopeKey,
		CreatedAtNanos:    nowNanos,
		LastActivityNanos: nowNanos,
		Baselines:         make(map[string]*RollingStats),
	}
	inst.resetSteps(mp)
	return inst
}

// Reset reinitializes inst's progress (but not its scope key or
// baselines) — used by sliding windows once an instance completes, so
// the same scope key can begin matching from step 0 again.
func (inst *Instance) Reset(mp *plan.MatchPlan, nowNanos int64) {
	inst.CreatedAtNanos = nowNanos
	inst.resetSteps(mp)
}

func (inst *Instance) resetSteps(mp *plan.MatchPlan) {
	inst.CurrentStep = 0
	inst.EventOK = false
	inst.StepStates = make([]StepState, len(mp.EventSteps))
	for i, step := range mp.EventSteps {
		inst.StepStates[i] = NewStepState(len(step.Branches))
	}
	inst.CompletedSteps = nil
	inst.CloseStepStates = make([]StepState, len(mp.CloseSteps))
	for i, step := range mp.CloseSteps {
		inst.CloseStepStates[i] = NewStepState(len(step.Branches))
	}
}

// BaselineZScore returns how many standard deviations currentValue is
// from field's running mean within this instance, observing
// currentValue into that running statistic as a side effect — each
// evaluation both answers and extends the baseline. The rolling
// statistics are unbounded (all observations since the instance was
// created), not decayed to a trailing window: baseline(field,
// window_secs)'s window_secs argument is accepted for DSL
// compatibility but not applied as a time decay.
func (inst *Instance) BaselineZScore(field string, currentValue float64) float64 {
	rs, ok := inst.Baselines[field]
	if !ok {
		rs = &RollingStats{}
		inst.Baselines[field] = rs
	}
	z := rs.ZScore(currentValue)
	rs.Observe(currentValue)
	return z
}
