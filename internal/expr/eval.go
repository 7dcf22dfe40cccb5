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

package expr

import (
	"math"
	"strings"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

// Baseliner supplies baseline(field, window_secs) z-scores to the
// evaluator. The state machine implements this over an instance's
// per-label rolling statistics; see spec §4.5.
type Baseliner interface {
	Baseline(field string, windowSecs float64) float64
}

// Eval evaluates expr against ctx, returning the absent outcome (false,
// false) when any subexpression is undefined. Eval never panics: it is
// a total function over possibly-partial input, per spec §4.1 and §9.
func Eval(e *Expr, ctx event.Event) (value.Value, bool) {
	return evalWith(e, ctx, nil)
}

// EvalWithBaseline is Eval, but additionally resolves baseline(...)
// calls via bl.
func EvalWithBaseline(e *Expr, ctx event.Event, bl Baseliner) (value.Value, bool) {
	return evalWith(e, ctx, bl)
}

func evalWith(e *Expr, ctx event.Event, bl Baseliner) (value.Value, bool) {
	if e == nil {
		return value.Value{}, false
	}
	switch e.kind {
	case kindNumber:
		return value.Number(e.number), true
	case kindString:
		return value.String(e.str), true
	case kindBool:
		return value.Bool(e.b), true
	case kindField:
		return resolveField(e.field, ctx)
	case kindBinOp:
		return evalBinOp(e, ctx, bl)
	case kindNeg:
		v, ok := evalWith(e.neg, ctx, bl)
		if !ok {
			return value.Value{}, false
		}
		n, ok := value.Numeric(v)
		if !ok {
			return value.Value{}, false
		}
		return value.Number(-n), true
	case kindCall:
		return evalCall(e, ctx, bl)
	case kindInList:
		return evalInList(e, ctx, bl)
	case kindIfThenElse:
		cond, ok := evalWith(e.cond, ctx, bl)
		b, isBool := cond.AsBool()
		if !ok || !isBool {
			// absent/non-boolean condition short-circuits to the else
			// branch, mirroring guard short-circuit-to-false semantics.
			return evalWith(e.els, ctx, bl)
		}
		if b {
			return evalWith(e.then, ctx, bl)
		}
		return evalWith(e.els, ctx, bl)
	default:
		return value.Value{}, false
	}
}

func resolveField(ref FieldRef, ctx event.Event) (value.Value, bool) {
	if ref.IsSimple() {
		return ctx.Get(ref.Name)
	}
	// Qualified/bracketed refs both resolve against the flattened
	// context: the executor populates both `qualifier.field` and bare
	// `field` keys (spec §4.6 step 2), so a qualified lookup first tries
	// the dotted key, falling back to the bare field name.
	if v, ok := ctx.Get(ref.Qualifier + "." + ref.Name); ok {
		return v, true
	}
	return ctx.Get(ref.Name)
}

func evalBinOp(e *Expr, ctx event.Event, bl Baseliner) (value.Value, bool) {
	switch e.op {
	case OpAnd:
		l, lok := evalWith(e.left, ctx, bl)
		if lb, isB := l.AsBool(); lok && isB && !lb {
			return value.Bool(false), true
		}
		r, rok := evalWith(e.right, ctx, bl)
		lb, lIsBool := l.AsBool()
		rb, rIsBool := r.AsBool()
		if !lok || !rok || !lIsBool || !rIsBool {
			return value.Value{}, false
		}
		return value.Bool(lb && rb), true
	case OpOr:
		l, lok := evalWith(e.left, ctx, bl)
		if lb, isB := l.AsBool(); lok && isB && lb {
			return value.Bool(true), true
		}
		r, rok := evalWith(e.right, ctx, bl)
		lb, lIsBool := l.AsBool()
		rb, rIsBool := r.AsBool()
		if !lok || !rok || !lIsBool || !rIsBool {
			return value.Value{}, false
		}
		return value.Bool(lb || rb), true
	}

	l, lok := evalWith(e.left, ctx, bl)
	r, rok := evalWith(e.right, ctx, bl)
	if !lok || !rok {
		return value.Value{}, false
	}

	switch e.op {
	case OpEq:
		return value.Bool(value.Equal(l, r)), true
	case OpNe:
		return value.Bool(!value.Equal(l, r)), true
	case OpLt, OpGt, OpLe, OpGe:
		if l.Kind() != r.Kind() {
			// Comparisons on mixed types return false, never an error.
			return value.Bool(false), true
		}
		c := value.Compare(l, r)
		switch e.op {
		case OpLt:
			return value.Bool(c < 0), true
		case OpGt:
			return value.Bool(c > 0), true
		case OpLe:
			return value.Bool(c <= 0), true
		default: // OpGe
			return value.Bool(c >= 0), true
		}
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		ln, lIsNum := value.Numeric(l)
		rn, rIsNum := value.Numeric(r)
		if !lIsNum || !rIsNum {
			return value.Value{}, false
		}
		switch e.op {
		case OpAdd:
			return value.Number(ln + rn), true
		case OpSub:
			return value.Number(ln - rn), true
		case OpMul:
			return value.Number(ln * rn), true
		case OpDiv:
			if rn == 0 {
				return value.Value{}, false
			}
			return value.Number(ln / rn), true
		default: // OpMod
			if rn == 0 {
				return value.Value{}, false
			}
			return value.Number(math.Mod(ln, rn)), true
		}
	}
	return value.Value{}, false
}

func evalInList(e *Expr, ctx event.Event, bl Baseliner) (value.Value, bool) {
	v, ok := evalWith(e.inExpr, ctx, bl)
	if !ok {
		return value.Value{}, false
	}
	found := false
	for _, item := range e.inList {
		iv, iok := evalWith(item, ctx, bl)
		if iok && value.Equal(v, iv) {
			found = true
			break
		}
	}
	if e.inNegated {
		return value.Bool(!found), true
	}
	return value.Bool(found), true
}

func evalCall(e *Expr, ctx event.Event, bl Baseliner) (value.Value, bool) {
	name := e.funcName
	if e.qualifier != "" {
		name = e.qualifier + "." + name
	}
	switch strings.ToLower(name) {
	case "baseline":
		if bl == nil || len(e.args) != 2 {
			return value.Value{}, false
		}
		fieldExpr := e.args[0]
		if fieldExpr.kind != kindField && fieldExpr.kind != kindString {
			return value.Value{}, false
		}
		var field string
		if fieldExpr.kind == kindField {
			field = fieldExpr.field.Name
		} else {
			field = fieldExpr.str
		}
		winVal, ok := evalWith(e.args[1], ctx, bl)
		if !ok {
			return value.Value{}, false
		}
		winSecs, ok := value.Numeric(winVal)
		if !ok {
			return value.Value{}, false
		}
		return value.Number(bl.Baseline(field, winSecs)), true
	case "abs":
		if len(e.args) != 1 {
			return value.Value{}, false
		}
		v, ok := evalWith(e.args[0], ctx, bl)
		if !ok {
			return value.Value{}, false
		}
		n, ok := value.Numeric(v)
		if !ok {
			return value.Value{}, false
		}
		return value.Number(math.Abs(n)), true
	case "has":
		// has(field): membership/presence guard used with join snapshots.
		if len(e.args) != 1 || e.args[0].kind != kindField {
			return value.Value{}, false
		}
		_, ok := resolveField(e.args[0].field, ctx)
		return value.Bool(ok), true
	default:
		return value.Value{}, false
	}
}
