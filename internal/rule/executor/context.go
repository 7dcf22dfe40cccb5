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

// Package executor turns a completed state.CloseOutput into a fired
// Alert: building the score/entity/yield evaluation context (joins
// included), evaluating those expressions, and encoding the result
// (C5/C6's executor half, split across context/eval/match/close/alert.go
// in the teacher domain's style of one small file per concern).
package executor

import (
	"math"

	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/rule/state"
	"github.com/cockroachdb/wf-reactor/internal/value"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// BuildContext flattens a CloseOutput into an evaluation context for
// the rule's score/entity/yield expressions: scope key values under
// their key field names, then every labeled step's measure value under
// its label (event steps first, close steps able to shadow them), then
// any resolved join fields already computed by ResolveJoins.
func BuildContext(co state.CloseOutput, keys []string, joinFields map[string]value.Value) map[string]value.Value {
	ctx := make(map[string]value.Value, len(keys)+len(co.EventSteps)+len(co.CloseSteps)+len(joinFields))
	for i, k := range keys {
		if i < len(co.ScopeKey) {
			ctx[k] = co.ScopeKey[i]
		}
	}
	for _, step := range co.EventSteps {
		if step.HasLabel {
			ctx[step.Label] = value.Number(step.MeasureValue)
		}
	}
	for _, step := range co.CloseSteps {
		if step.HasLabel {
			ctx[step.Label] = value.Number(step.MeasureValue)
		}
	}
	for k, v := range joinFields {
		ctx[k] = v
	}
	return ctx
}

// ResolveJoins evaluates every join clause of a rule against registry,
// returning the resolved right-side fields under "<window>.<field>"
// and, where the bare field name is not already in leftCtx or set by an
// earlier join, also under "<field>". A join with no matching
// right-side row adds nothing (an unmatched join drops no alert by
// itself — guard expressions decide whether a missing join field
// matters, via has(window.field)).
func ResolveJoins(joins []plan.Join, leftCtx map[string]value.Value, registry *window.Registry, leftTimeNanos int64) map[string]value.Value {
	out := make(map[string]value.Value)
	for _, j := range joins {
		buf, ok := registry.Lookup(j.RightWindow)
		if !ok {
			continue
		}
		row, ok := selectJoinRow(j, leftCtx, buf, leftTimeNanos)
		if !ok {
			continue
		}
		for name, v := range row.Fields {
			out[j.RightWindow+"."+name] = v
		}
		for name, v := range row.Fields {
			if _, taken := leftCtx[name]; taken {
				continue
			}
			if _, taken := out[name]; !taken {
				out[name] = v
			}
		}
	}
	return out
}

func selectJoinRow(j plan.Join, leftCtx map[string]value.Value, buf *window.Buffer, leftTimeNanos int64) (rowCarrier, bool) {
	var best rowCarrier
	found := false
	var bestDelta int64 = math.MaxInt64

	for _, batch := range buf.Snapshot() {
		for _, ev := range batch.Events {
			if !joinConditionsHold(j.Conds, leftCtx, ev) {
				continue
			}
			if j.Mode == plan.JoinAsof {
				delta := leftTimeNanos - ev.TimeNanos
				if delta < 0 {
					delta = -delta
				}
				if j.Within > 0 && delta > int64(j.Within) {
					continue
				}
				if delta < bestDelta {
					bestDelta = delta
					best = rowCarrier{Fields: ev.Fields}
					found = true
				}
				continue
			}
			// Snapshot mode: the first matching row in window order wins,
			// time proximity ignored (see DESIGN.md open question 2).
			return rowCarrier{Fields: ev.Fields, timeNanos: ev.TimeNanos}, true
		}
	}
	return best, found
}

type rowCarrier struct {
	Fields    map[string]value.Value
	timeNanos int64
}

func joinConditionsHold(conds []plan.JoinCond, leftCtx map[string]value.Value, right interface {
	Get(string) (value.Value, bool)
}) bool {
	for _, c := range conds {
		lv, ok := leftCtx[c.Left]
		if !ok {
			return false
		}
		rv, ok := right.Get(c.Right)
		if !ok {
			return false
		}
		if !value.Equal(lv, rv) {
			return false
		}
	}
	return true
}
