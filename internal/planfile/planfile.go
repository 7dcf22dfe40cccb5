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

// Package planfile loads compiled rule plans (plan.RulePlan) from a
// TOML file. It is not the rule DSL's front-end compiler -- spec §1
// puts the DSL parser and semantic checker out of core scope, and this
// package performs no such checking. It exists only so cmd/wfengine has
// a way to hand the engine already-compiled plans without embedding Go
// literals, by giving each plan's scalar expressions (score, entity id,
// guards, thresholds, yield fields) as strings compiled with
// expr.Parse, and by spelling the plan's enums as TOML strings.
package planfile

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
)

type file struct {
	Rule []ruleDef `toml:"rule"`
}

type ruleDef struct {
	Name   string
	Bind   []bindDef
	Match  matchDef
	Join   []joinDef
	Entity entityDef
	Yield  yieldDef
	Score  string
	Conv   *convDef
	Limits *limitsDef
}

type bindDef struct {
	Alias      string
	WindowName string `toml:"window"`
	Filter     string
}

type matchDef struct {
	Keys      []string
	KeyMap    []keyMapDef `toml:"key_map"`
	Window    string      // "sliding:5m", "fixed:1h", "session:10m"
	Event     []stepDef
	Close     []stepDef
	CloseMode string `toml:"close_mode"` // "and" (default) or "or"
}

type keyMapDef struct {
	LogicalName string `toml:"logical"`
	SourceAlias string `toml:"alias"`
	SourceField string `toml:"field"`
}

type stepDef struct {
	Branch []branchDef
}

type branchDef struct {
	Label     string
	Alias     string
	Field     string
	Guard     string
	Transform string // "none" (default) or "distinct"
	Measure   string // count|sum|avg|min|max
	Cmp       string // eq|ne|lt|gt|le|ge
	Threshold string
}

type joinDef struct {
	Window string
	Mode   string // "snapshot" (default) or "asof"
	Within string
	On     []joinCondDef
}

type joinCondDef struct {
	Left  string
	Right string
}

type entityDef struct {
	Type string
	ID   string
}

type yieldFieldDef struct {
	Name  string
	Value string
}

type yieldDef struct {
	TargetWindow string `toml:"target"`
	Version      int
	Field        []yieldFieldDef
}

type convDef struct {
	Chain [][]convOpDef
}

type convOpDef struct {
	Kind  string // sort|top|dedup|where
	Sort  []sortKeyDef
	Top   int
	Dedup string
	Where string
}

type sortKeyDef struct {
	Expr string
	Desc bool
}

type limitsDef struct {
	MaxInstances   int `toml:"max_instances"`
	MaxMemoryBytes int64 `toml:"max_memory_bytes"`
	MaxThrottleHz  float64 `toml:"max_throttle_hz"`
	OnExceed       string `toml:"on_exceed"` // throttle|reject|evict_oldest
}

// Load reads a TOML plan file and compiles it into RulePlans, parsing
// every expression string with expr.Parse along the way.
func Load(path string) ([]*plan.RulePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading plan file %s", path)
	}
	var f file
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, errors.Wrapf(err, "parsing plan file %s", path)
	}
	out := make([]*plan.RulePlan, 0, len(f.Rule))
	for _, rd := range f.Rule {
		rp, err := compileRule(rd)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %q", rd.Name)
		}
		out = append(out, rp)
	}
	return out, nil
}

func compileRule(rd ruleDef) (*plan.RulePlan, error) {
	binds := make([]plan.Bind, len(rd.Bind))
	for i, b := range rd.Bind {
		bind := plan.Bind{Alias: b.Alias, WindowName: b.WindowName}
		if b.Filter != "" {
			f, err := expr.Parse(b.Filter)
			if err != nil {
				return nil, errors.Wrapf(err, "bind %q filter", b.Alias)
			}
			bind.Filter = f
		}
		binds[i] = bind
	}

	match, err := compileMatch(rd.Match)
	if err != nil {
		return nil, err
	}

	joins := make([]plan.Join, len(rd.Join))
	for i, j := range rd.Join {
		mode, err := joinMode(j.Mode)
		if err != nil {
			return nil, err
		}
		var within time.Duration
		if j.Within != "" {
			within, err = time.ParseDuration(j.Within)
			if err != nil {
				return nil, errors.Wrapf(err, "join %q within", j.Window)
			}
		}
		conds := make([]plan.JoinCond, len(j.On))
		for k, c := range j.On {
			conds[k] = plan.JoinCond{Left: c.Left, Right: c.Right}
		}
		joins[i] = plan.Join{RightWindow: j.Window, Mode: mode, Within: within, Conds: conds}
	}

	entityID, err := expr.Parse(rd.Entity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "entity id")
	}
	scoreExpr, err := expr.Parse(rd.Score)
	if err != nil {
		return nil, errors.Wrap(err, "score")
	}

	yieldFields := make([]plan.YieldField, len(rd.Yield.Field))
	for i, yf := range rd.Yield.Field {
		v, err := expr.Parse(yf.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "yield field %q", yf.Name)
		}
		yieldFields[i] = plan.YieldField{Name: yf.Name, Value: v}
	}

	var conv *plan.ConvPlan
	if rd.Conv != nil {
		conv, err = compileConv(*rd.Conv)
		if err != nil {
			return nil, err
		}
	}

	var limits *plan.LimitsPlan
	if rd.Limits != nil {
		onExceed, err := onExceedMode(rd.Limits.OnExceed)
		if err != nil {
			return nil, err
		}
		limits = &plan.LimitsPlan{
			MaxInstances:   rd.Limits.MaxInstances,
			MaxMemoryBytes: rd.Limits.MaxMemoryBytes,
			MaxThrottleHz:  rd.Limits.MaxThrottleHz,
			OnExceed:       onExceed,
		}
	}

	return &plan.RulePlan{
		Name:   rd.Name,
		Binds:  binds,
		Match:  match,
		Joins:  joins,
		Entity: plan.EntityPlan{EntityType: rd.Entity.Type, EntityID: entityID},
		Yield:  plan.YieldPlan{TargetWindow: rd.Yield.TargetWindow, Version: rd.Yield.Version, Fields: yieldFields},
		Score:  plan.ScorePlan{Expr: scoreExpr},
		Conv:   conv,
		Limits: limits,
	}, nil
}

func compileMatch(md matchDef) (plan.MatchPlan, error) {
	kind, dur, err := windowSpec(md.Window)
	if err != nil {
		return plan.MatchPlan{}, err
	}
	keyMap := make([]plan.KeyMapPlan, len(md.KeyMap))
	for i, km := range md.KeyMap {
		keyMap[i] = plan.KeyMapPlan{LogicalName: km.LogicalName, SourceAlias: km.SourceAlias, SourceField: km.SourceField}
	}
	eventSteps, err := compileSteps(md.Event)
	if err != nil {
		return plan.MatchPlan{}, errors.Wrap(err, "event steps")
	}
	closeSteps, err := compileSteps(md.Close)
	if err != nil {
		return plan.MatchPlan{}, errors.Wrap(err, "close steps")
	}
	closeMode := plan.CloseAnd
	if md.CloseMode == "or" {
		closeMode = plan.CloseOr
	} else if md.CloseMode != "" && md.CloseMode != "and" {
		return plan.MatchPlan{}, errors.Errorf("unknown close_mode %q", md.CloseMode)
	}
	return plan.MatchPlan{
		Keys:       md.Keys,
		KeyMap:     keyMap,
		WindowSpec: plan.WindowSpec{Kind: kind, Duration: dur},
		EventSteps: eventSteps,
		CloseSteps: closeSteps,
		CloseMode:  closeMode,
	}, nil
}

func compileSteps(defs []stepDef) ([]plan.Step, error) {
	steps := make([]plan.Step, len(defs))
	for i, sd := range defs {
		branches := make([]plan.Branch, len(sd.Branch))
		for j, bd := range sd.Branch {
			branch, err := compileBranch(bd)
			if err != nil {
				return nil, errors.Wrapf(err, "branch %d", j)
			}
			branches[j] = branch
		}
		steps[i] = plan.Step{Branches: branches}
	}
	return steps, nil
}

func compileBranch(bd branchDef) (plan.Branch, error) {
	var guard *expr.Expr
	if bd.Guard != "" {
		g, err := expr.Parse(bd.Guard)
		if err != nil {
			return plan.Branch{}, errors.Wrap(err, "guard")
		}
		guard = g
	}
	threshold, err := expr.Parse(bd.Threshold)
	if err != nil {
		return plan.Branch{}, errors.Wrap(err, "threshold")
	}
	measure, err := measureKind(bd.Measure)
	if err != nil {
		return plan.Branch{}, err
	}
	cmp, err := cmpOp(bd.Cmp)
	if err != nil {
		return plan.Branch{}, err
	}
	transform := plan.TransformNone
	if bd.Transform == "distinct" {
		transform = plan.TransformDistinct
	} else if bd.Transform != "" && bd.Transform != "none" {
		return plan.Branch{}, errors.Errorf("unknown transform %q", bd.Transform)
	}
	return plan.Branch{
		Label:       bd.Label,
		SourceAlias: bd.Alias,
		Field:       bd.Field,
		Guard:       guard,
		Transform:   transform,
		Measure:     measure,
		Cmp:         cmp,
		Threshold:   threshold,
	}, nil
}

func compileConv(cd convDef) (*plan.ConvPlan, error) {
	chains := make([]plan.ConvChain, len(cd.Chain))
	for i, chain := range cd.Chain {
		ops := make([]plan.ConvOp, len(chain))
		for j, od := range chain {
			op, err := compileConvOp(od)
			if err != nil {
				return nil, errors.Wrapf(err, "chain %d op %d", i, j)
			}
			ops[j] = op
		}
		chains[i] = plan.ConvChain{Ops: ops}
	}
	return &plan.ConvPlan{Chains: chains}, nil
}

func compileConvOp(od convOpDef) (plan.ConvOp, error) {
	switch od.Kind {
	case "sort":
		keys := make([]plan.SortKey, len(od.Sort))
		for i, sk := range od.Sort {
			e, err := expr.Parse(sk.Expr)
			if err != nil {
				return plan.ConvOp{}, errors.Wrap(err, "sort key")
			}
			keys[i] = plan.SortKey{Expr: e, Descending: sk.Desc}
		}
		return plan.ConvOp{Kind: plan.ConvSort, Sort: keys}, nil
	case "top":
		return plan.ConvOp{Kind: plan.ConvTop, Top: od.Top}, nil
	case "dedup":
		e, err := expr.Parse(od.Dedup)
		if err != nil {
			return plan.ConvOp{}, errors.Wrap(err, "dedup expr")
		}
		return plan.ConvOp{Kind: plan.ConvDedup, Dedup: e}, nil
	case "where":
		e, err := expr.Parse(od.Where)
		if err != nil {
			return plan.ConvOp{}, errors.Wrap(err, "where expr")
		}
		return plan.ConvOp{Kind: plan.ConvWhere, Where: e}, nil
	default:
		return plan.ConvOp{}, errors.Errorf("unknown conv op %q", od.Kind)
	}
}

func windowSpec(spec string) (plan.WindowKind, time.Duration, error) {
	kindStr, durStr, ok := splitOnce(spec, ':')
	if !ok {
		return 0, 0, errors.Errorf("malformed window spec %q, want kind:duration", spec)
	}
	dur, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "window spec %q duration", spec)
	}
	switch kindStr {
	case "sliding":
		return plan.KindSliding, dur, nil
	case "fixed":
		return plan.KindFixed, dur, nil
	case "session":
		return plan.KindSession, dur, nil
	default:
		return 0, 0, errors.Errorf("unknown window kind %q", kindStr)
	}
}

func splitOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func measureKind(s string) (plan.Measure, error) {
	switch s {
	case "count":
		return plan.MeasureCount, nil
	case "sum":
		return plan.MeasureSum, nil
	case "avg":
		return plan.MeasureAvg, nil
	case "min":
		return plan.MeasureMin, nil
	case "max":
		return plan.MeasureMax, nil
	default:
		return 0, errors.Errorf("unknown measure %q", s)
	}
}

func cmpOp(s string) (plan.CmpOp, error) {
	switch s {
	case "eq":
		return plan.CmpEq, nil
	case "ne":
		return plan.CmpNe, nil
	case "lt":
		return plan.CmpLt, nil
	case "gt":
		return plan.CmpGt, nil
	case "le":
		return plan.CmpLe, nil
	case "ge":
		return plan.CmpGe, nil
	default:
		return 0, errors.Errorf("unknown comparison %q", s)
	}
}

func joinMode(s string) (plan.JoinMode, error) {
	switch s {
	case "", "snapshot":
		return plan.JoinSnapshot, nil
	case "asof":
		return plan.JoinAsof, nil
	default:
		return 0, errors.Errorf("unknown join mode %q", s)
	}
}

func onExceedMode(s string) (plan.OnExceed, error) {
	switch s {
	case "", "throttle":
		return plan.OnExceedThrottle, nil
	case "reject":
		return plan.OnExceedReject, nil
	case "evict_oldest":
		return plan.OnExceedEvictOldest, nil
	default:
		return 0, errors.Errorf("unknown on_exceed %q", s)
	}
}
