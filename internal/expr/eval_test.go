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

package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

func mustParse(t *testing.T, src string) *expr.Expr {
	t.Helper()
	e, err := expr.Parse(src)
	require.NoError(t, err)
	return e
}

func TestEvalArithmeticAndComparison(t *testing.T) {
	ev := event.New(0)
	ev.Fields["count"] = value.Number(5)

	e := mustParse(t, "count >= 5")
	v, ok := expr.Eval(e, ev)
	require.True(t, ok)
	b, _ := v.AsBool()
	assert.True(t, b)

	e2 := mustParse(t, "count + 1 == 6")
	v2, ok := expr.Eval(e2, ev)
	require.True(t, ok)
	b2, _ := v2.AsBool()
	assert.True(t, b2)
}

func TestEvalMissingFieldIsAbsent(t *testing.T) {
	ev := event.New(0)
	e := mustParse(t, "missing == 1")
	_, ok := expr.Eval(e, ev)
	assert.False(t, ok)
}

func TestEvalMixedTypeComparisonIsFalseNotError(t *testing.T) {
	ev := event.New(0)
	ev.Fields["a"] = value.String("x")
	e := mustParse(t, `a < 5`)
	v, ok := expr.Eval(e, ev)
	require.True(t, ok)
	b, _ := v.AsBool()
	assert.False(t, b)
}

func TestEvalStringLiteralAndIn(t *testing.T) {
	ev := event.New(0)
	ev.Fields["action"] = value.String("failed")
	e := mustParse(t, `action == "failed"`)
	v, ok := expr.Eval(e, ev)
	require.True(t, ok)
	b, _ := v.AsBool()
	assert.True(t, b)

	e2 := mustParse(t, `action in ("failed", "denied")`)
	v2, ok := expr.Eval(e2, ev)
	require.True(t, ok)
	b2, _ := v2.AsBool()
	assert.True(t, b2)

	e3 := mustParse(t, `action not in ("ok", "success")`)
	v3, ok := expr.Eval(e3, ev)
	require.True(t, ok)
	b3, _ := v3.AsBool()
	assert.True(t, b3)
}

func TestEvalIfThenElse(t *testing.T) {
	ev := event.New(0)
	ev.Fields["count"] = value.Number(3)
	e := mustParse(t, "if count > 2 then 70 else 30")
	v, ok := expr.Eval(e, ev)
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, 70.0, n)
}

func TestEvalQualifiedFieldFallsBackToBareName(t *testing.T) {
	ev := event.New(0)
	ev.Fields["sip"] = value.String("10.0.0.1")
	e := mustParse(t, "fail.sip")
	v, ok := expr.Eval(e, ev)
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "10.0.0.1", s)
}

type constBaseline struct{ z float64 }

func (c constBaseline) Baseline(string, float64) float64 { return c.z }

func TestEvalBaseline(t *testing.T) {
	ev := event.New(0)
	e := mustParse(t, "baseline(latency, 300)")
	v, ok := expr.EvalWithBaseline(e, ev, constBaseline{z: 2.5})
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, 2.5, n)
}

func TestValueCompareMixedTypeOrder(t *testing.T) {
	assert.True(t, value.Compare(value.Number(1), value.String("a")) < 0)
	assert.True(t, value.Compare(value.String("a"), value.Bool(true)) < 0)
	assert.True(t, value.Compare(value.Number(1), value.Bool(false)) < 0)
}
