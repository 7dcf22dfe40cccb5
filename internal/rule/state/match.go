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
	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

// instanceBaseliner adapts an Instance's rolling statistics to the
// expr.Baseliner interface for a single evaluation: baseline(field,
// window_secs) resolves field's current value from ctx, then asks the
// instance to score and extend its running statistics for it.
type instanceBaseliner struct {
	inst *Instance
	ctx  event.Event
}

func (b instanceBaseliner) Baseline(field string, _ float64) float64 {
	v, ok := b.ctx.Get(field)
	if !ok {
		return 0
	}
	n, ok := value.Numeric(v)
	if !ok {
		return 0
	}
	return b.inst.BaselineZScore(field, n)
}

// matchStep evaluates the branches of step against ev (arriving from
// alias) in order: every branch whose source alias and guard accept ev
// folds it into its accumulator, and matchStep returns true as soon as
// one of them satisfies its threshold comparison (later branches are
// then not evaluated), reporting whether the step as a whole advanced.
// Branches within a
// step are OR-combined: the step completes as soon as any one branch
// is satisfied.
func matchStep(step plan.Step, ss StepState, ev event.Event, alias string, inst *Instance) bool {
	bl := instanceBaseliner{inst: inst, ctx: ev}
	for i, br := range step.Branches {
		if br.SourceAlias != "" && br.SourceAlias != alias {
			continue
		}
		if br.Guard != nil {
			v, ok := expr.EvalWithBaseline(br.Guard, ev, bl)
			b, isBool := v.AsBool()
			if !ok || !isBool || !b {
				continue
			}
		}

		folded := foldValue(br, ev)
		bs := &ss.Branches[i]
		bs.Apply(folded, br.Transform)

		measured := bs.Measure(br.Measure)
		if compareThreshold(measured, br.Cmp, br.Threshold, ev, bl) {
			return true
		}
	}
	return false
}

// foldValue extracts the value a branch folds into its accumulator:
// the named field if one is given, or a constant 1 for count-only
// branches (so Apply's bookkeeping still has a distinct-set key and a
// numeric contribution to Sum/Min/Max/Avg).
func foldValue(br plan.Branch, ev event.Event) value.Value {
	if br.Field == "" {
		return value.Number(1)
	}
	if v, ok := ev.Get(br.Field); ok {
		return v
	}
	return value.Number(1)
}

func compareThreshold(measured float64, cmp plan.CmpOp, threshold *expr.Expr, ev event.Event, bl instanceBaseliner) bool {
	tv, ok := expr.EvalWithBaseline(threshold, ev, bl)
	if !ok {
		return false
	}
	tn, ok := value.Numeric(tv)
	if !ok {
		return false
	}
	switch cmp {
	case plan.CmpEq:
		return measured == tn
	case plan.CmpNe:
		return measured != tn
	case plan.CmpLt:
		return measured < tn
	case plan.CmpGt:
		return measured > tn
	case plan.CmpLe:
		return measured <= tn
	case plan.CmpGe:
		return measured >= tn
	default:
		return false
	}
}
