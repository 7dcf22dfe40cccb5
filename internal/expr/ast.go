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

// Package expr implements the rule DSL's expression language: the small
// functional tree described in spec §4.1, and a pure evaluator over
// event.Event -> Option[value.Value].
package expr

// BinOp identifies a binary operator.
type BinOp int

// Binary operators supported by the expression language.
const (
	OpAnd BinOp = iota
	OpOr
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

// FieldRef identifies a field reference form.
type FieldRef struct {
	// Qualifier is the alias/window qualifier for Qualified and
	// Bracketed refs; empty for Simple.
	Qualifier string
	// Name is the field name.
	Name string
	// Bracketed indicates `qualifier["field"]` rather than `qualifier.field`.
	Bracketed bool
}

// Simple builds a bare-identifier FieldRef, e.g. `sip`.
func Simple(name string) FieldRef { return FieldRef{Name: name} }

// Qualified builds a `qualifier.field` FieldRef, e.g. `fail.sip`.
func Qualified(qualifier, name string) FieldRef {
	return FieldRef{Qualifier: qualifier, Name: name}
}

// Bracketed builds a `qualifier["field"]` FieldRef.
func Bracketed(qualifier, name string) FieldRef {
	return FieldRef{Qualifier: qualifier, Name: name, Bracketed: true}
}

// IsSimple reports whether the ref has no qualifier.
func (f FieldRef) IsSimple() bool { return f.Qualifier == "" }

// Expr is the expression tree. Exactly one of the typed fields is
// populated, selected by Kind.
type Expr struct {
	kind exprKind

	number float64
	str    string
	b      bool
	field  FieldRef

	op          BinOp
	left, right *Expr

	neg *Expr

	qualifier string
	funcName  string
	args      []*Expr

	inExpr    *Expr
	inList    []*Expr
	inNegated bool

	cond, then, els *Expr
}

type exprKind int

const (
	kindNumber exprKind = iota
	kindString
	kindBool
	kindField
	kindBinOp
	kindNeg
	kindCall
	kindInList
	kindIfThenElse
)

// Number builds a numeric literal.
func Number(n float64) *Expr { return &Expr{kind: kindNumber, number: n} }

// StringLit builds a string literal.
func StringLit(s string) *Expr { return &Expr{kind: kindString, str: s} }

// BoolLit builds a boolean literal.
func BoolLit(b bool) *Expr { return &Expr{kind: kindBool, b: b} }

// Field builds a field-reference expression.
func Field(ref FieldRef) *Expr { return &Expr{kind: kindField, field: ref} }

// Bin builds a binary operation.
func Bin(op BinOp, left, right *Expr) *Expr {
	return &Expr{kind: kindBinOp, op: op, left: left, right: right}
}

// Neg builds a unary negation.
func Neg(inner *Expr) *Expr { return &Expr{kind: kindNeg, neg: inner} }

// Call builds a function call, with an optional qualifier (e.g.
// `fail.has(...)`).
func Call(qualifier, name string, args ...*Expr) *Expr {
	return &Expr{kind: kindCall, qualifier: qualifier, funcName: name, args: args}
}

// InList builds an `expr in (...)` / `expr not in (...)` expression.
func InList(e *Expr, list []*Expr, negated bool) *Expr {
	return &Expr{kind: kindInList, inExpr: e, inList: list, inNegated: negated}
}

// IfThenElse builds a conditional expression.
func IfThenElse(cond, then, els *Expr) *Expr {
	return &Expr{kind: kindIfThenElse, cond: cond, then: then, els: els}
}
