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
	"sort"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

// CloseOutput is one fixed-window bucket's closed result: its scope
// key plus every completed event/close step, ready for conv
// post-processing and then yield/score/entity evaluation.
type CloseOutput struct {
	ScopeKey      []value.Value
	EventSteps    []StepData
	CloseSteps    []StepData
}

// ApplyConv runs every chain of cp in order against outputs, each
// chain's operations applied left-to-right, per spec §4.5 (e.g.
// `sort(-count) | top(10)` sorts descending then truncates).
func ApplyConv(cp *plan.ConvPlan, keys []string, outputs []CloseOutput) []CloseOutput {
	if cp == nil {
		return outputs
	}
	for _, chain := range cp.Chains {
		outputs = applyChain(chain, keys, outputs)
	}
	return outputs
}

func applyChain(chain plan.ConvChain, keys []string, outputs []CloseOutput) []CloseOutput {
	for _, op := range chain.Ops {
		outputs = applyOp(op, keys, outputs)
	}
	return outputs
}

func applyOp(op plan.ConvOp, keys []string, outputs []CloseOutput) []CloseOutput {
	switch op.Kind {
	case plan.ConvSort:
		sort.SliceStable(outputs, func(i, j int) bool {
			ctxI := buildEvalContext(outputs[i], keys)
			ctxJ := buildEvalContext(outputs[j], keys)
			for _, sk := range op.Sort {
				vi, iok := expr.Eval(sk.Expr, ctxI)
				vj, jok := expr.Eval(sk.Expr, ctxJ)
				c := compareOptional(vi, iok, vj, jok)
				if sk.Descending {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
		return outputs
	case plan.ConvTop:
		if op.Top >= 0 && op.Top < len(outputs) {
			return outputs[:op.Top]
		}
		return outputs
	case plan.ConvDedup:
		seen := make(map[string]bool)
		out := outputs[:0]
		for _, o := range outputs {
			ctx := buildEvalContext(o, keys)
			v, ok := expr.Eval(op.Dedup, ctx)
			key := "__none__"
			if ok {
				key = valueToString(v)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, o)
		}
		return out
	case plan.ConvWhere:
		out := outputs[:0]
		for _, o := range outputs {
			ctx := buildEvalContext(o, keys)
			v, ok := expr.Eval(op.Where, ctx)
			b, isBool := v.AsBool()
			if ok && isBool && b {
				out = append(out, o)
			}
		}
		return out
	default:
		return outputs
	}
}

// buildEvalContext flattens a CloseOutput into an event.Event for conv
// expression evaluation: scope key values under their key field names,
// plus every labeled step's measure value under its label, event steps
// first and then close steps (so a close-step label shadows an
// event-step label of the same name, matching the original pattern
// match order).
func buildEvalContext(o CloseOutput, keys []string) event.Event {
	ctx := event.New(0)
	for i, k := range keys {
		if i < len(o.ScopeKey) {
			ctx = ctx.With(k, o.ScopeKey[i])
		}
	}
	for _, step := range o.EventSteps {
		if step.HasLabel {
			ctx = ctx.With(step.Label, value.Number(step.MeasureValue))
		}
	}
	for _, step := range o.CloseSteps {
		if step.HasLabel {
			ctx = ctx.With(step.Label, value.Number(step.MeasureValue))
		}
	}
	return ctx
}

func compareOptional(a value.Value, aok bool, b value.Value, bok bool) int {
	switch {
	case aok && bok:
		return value.Compare(a, b)
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	default:
		return 0
	}
}
