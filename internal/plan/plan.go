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

// Package plan defines the compiled, language-neutral rule
// representation (spec §4.1) consumed by the state machine and rule
// task. A RulePlan is produced by a front-end DSL compiler that is out
// of core scope (spec §1); this package only defines the IR. Loading
// plans from a file is done by internal/planfile.
package plan

import (
	"time"

	"github.com/cockroachdb/wf-reactor/internal/expr"
)

// Bind associates an alias with a source window and an optional filter.
type Bind struct {
	Alias      string
	WindowName string
	Filter     *expr.Expr // optional
}

// WindowKind selects the match clause's time semantics.
type WindowKind int

// The three window kinds a match clause may declare.
const (
	KindSliding WindowKind = iota
	KindFixed
	KindSession
)

// WindowSpec is the match clause's `<keys:dur>` time semantics: a
// sliding, fixed, or session window of the given duration (gap
// duration, for Session).
type WindowSpec struct {
	Kind     WindowKind
	Duration time.Duration
}

// KeyMapPlan remaps a logical key name to a source alias/field pair.
type KeyMapPlan struct {
	LogicalName  string
	SourceAlias  string
	SourceField  string
}

// CloseMode selects how the close path's qualification is judged.
type CloseMode int

// The two close-qualification modes spec §4.5 defines.
const (
	CloseAnd CloseMode = iota
	CloseOr
)

// Transform is an aggregation pre-processing step, applied before the
// measure is computed.
type Transform int

// Transforms applicable to a branch's aggregated values.
const (
	TransformNone Transform = iota
	TransformDistinct
)

// Measure selects the aggregate computed over a branch's accumulator.
type Measure int

// The five supported aggregate measures.
const (
	MeasureCount Measure = iota
	MeasureSum
	MeasureAvg
	MeasureMin
	MeasureMax
)

// CmpOp is the comparison applied between a measure and its threshold.
type CmpOp int

// Comparison operators available to a branch's threshold check.
const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpGt
	CmpLe
	CmpGe
)

// Branch is one OR-alternative within a Step.
type Branch struct {
	Label       string // optional; empty if unlabeled
	SourceAlias string
	Field       string // optional field selector; empty means "no field" (count-only)
	Guard       *expr.Expr
	Transform   Transform
	Measure     Measure
	Cmp         CmpOp
	Threshold   *expr.Expr
}

// HasLabel reports whether the branch was given an explicit label.
func (b Branch) HasLabel() bool { return b.Label != "" }

// Step is one element of the event or close pattern; it may contain
// several OR-branches.
type Step struct {
	Branches []Branch
}

// JoinMode selects a join's time-point semantics.
type JoinMode int

// The two join modes spec §4.1 defines.
const (
	JoinSnapshot JoinMode = iota
	JoinAsof
)

// JoinCond pairs a left (event-context) field with a right
// (target-window) field.
type JoinCond struct {
	Left  string
	Right string
}

// Join describes one `join <window> <mode> on <conds>` clause.
type Join struct {
	RightWindow string
	Mode        JoinMode
	Within      time.Duration // only meaningful when Mode == JoinAsof; zero means unbounded
	Conds       []JoinCond
}

// EntityPlan computes the alert's entity type/id.
type EntityPlan struct {
	EntityType string
	EntityID   *expr.Expr
}

// YieldField is one `name = expr` pair in a yield clause.
type YieldField struct {
	Name  string
	Value *expr.Expr
}

// YieldPlan describes the alert's routing target and output fields.
type YieldPlan struct {
	TargetWindow string
	Version      int // 0 means unversioned
	Fields       []YieldField
}

// ScorePlan computes the alert's score.
type ScorePlan struct {
	Expr *expr.Expr
}

// SortKey is one key of a conv `sort` operation.
type SortKey struct {
	Expr       *expr.Expr
	Descending bool
}

// ConvOpKind selects a conv chain operation.
type ConvOpKind int

// The four conv operations spec §4.5 defines.
const (
	ConvSort ConvOpKind = iota
	ConvTop
	ConvDedup
	ConvWhere
)

// ConvOp is one operation within a conv chain.
type ConvOp struct {
	Kind    ConvOpKind
	Sort    []SortKey  // ConvSort
	Top     int        // ConvTop
	Dedup   *expr.Expr // ConvDedup
	Where   *expr.Expr // ConvWhere
}

// ConvChain is an ordered, left-to-right pipeline of conv operations.
type ConvChain struct {
	Ops []ConvOp
}

// ConvPlan is an ordered list of chains applied sequentially to a fixed
// window's closed-bucket outputs.
type ConvPlan struct {
	Chains []ConvChain
}

// OnExceed selects the limiter's behavior once a rule's limits are hit.
type OnExceed int

// The three limit-exceeded behaviors spec §4.1 defines.
const (
	OnExceedThrottle OnExceed = iota
	OnExceedReject
	OnExceedEvictOldest
)

// LimitsPlan bounds a rule's resource consumption.
type LimitsPlan struct {
	MaxInstances   int // 0 means unbounded
	MaxMemoryBytes int64
	MaxThrottleHz  float64
	OnExceed       OnExceed
}

// MatchPlan is the compiled match clause: keys, window semantics, and
// the event/close step sequences.
type MatchPlan struct {
	Keys       []string
	KeyMap     []KeyMapPlan // optional; nil means "use Keys directly"
	WindowSpec WindowSpec
	EventSteps []Step
	CloseSteps []Step
	CloseMode  CloseMode
}

// RulePlan is one compiled rule: everything the state machine and rule
// task need to evaluate it, independent of the DSL it was compiled
// from.
type RulePlan struct {
	Name       string
	Binds      []Bind
	Match      MatchPlan
	Joins      []Join
	Entity     EntityPlan
	Yield      YieldPlan
	Score      ScorePlan
	Conv       *ConvPlan   // optional; only meaningful for Fixed windows
	Limits     *LimitsPlan // optional
}

// AliasBind returns the Bind for the given alias, and whether one
// exists.
func (r *RulePlan) AliasBind(alias string) (Bind, bool) {
	for _, b := range r.Binds {
		if b.Alias == alias {
			return b, true
		}
	}
	return Bind{}, false
}

// WindowNames returns the distinct set of window names this rule reads
// from, via binds and joins, in stable bind-then-join order.
func (r *RulePlan) WindowNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range r.Binds {
		if !seen[b.WindowName] {
			seen[b.WindowName] = true
			out = append(out, b.WindowName)
		}
	}
	for _, j := range r.Joins {
		if !seen[j.RightWindow] {
			seen[j.RightWindow] = true
			out = append(out, j.RightWindow)
		}
	}
	return out
}
