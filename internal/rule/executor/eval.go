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

package executor

import (
	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

func contextToEvent(ctx map[string]value.Value) event.Event {
	ev := event.New(0)
	for k, v := range ctx {
		ev = ev.With(k, v)
	}
	return ev
}

// EvalScore evaluates expr against ctx and clamps the result to
// [0, 100] (spec invariant 9: every emitted score is in that range).
// A non-numeric or absent result is a runtime-evaluation error, per
// spec §7's taxonomy — the alert is dropped, not emitted with a
// fabricated score.
func EvalScore(e *expr.Expr, ctx map[string]value.Value) (float64, error) {
	v, ok := expr.Eval(e, contextToEvent(ctx))
	if !ok {
		return 0, errors.New("score expression evaluated to absent")
	}
	n, ok := value.Numeric(v)
	if !ok {
		return 0, errors.Errorf("score expression evaluated to non-numeric value %v", v)
	}
	return clampScore(n), nil
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// EvalEntityID evaluates expr against ctx and stringifies the result,
// the same way scope-key values are stringified for instance keys and
// alert ids.
func EvalEntityID(e *expr.Expr, ctx map[string]value.Value) (string, error) {
	v, ok := expr.Eval(e, contextToEvent(ctx))
	if !ok {
		return "", errors.New("entity_id expression evaluated to absent")
	}
	return v.String(), nil
}

// EvalYieldFields evaluates every field of a YieldPlan against ctx,
// skipping (not erroring on) any field whose expression evaluates to
// absent — an absent yield field is simply omitted from the alert's
// output JSON.
func EvalYieldFields(fields []plan.YieldField, ctx map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(fields))
	evCtx := contextToEvent(ctx)
	for _, f := range fields {
		if v, ok := expr.Eval(f.Value, evCtx); ok {
			out[f.Name] = v
		}
	}
	return out
}
