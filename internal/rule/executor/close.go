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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/rule/state"
	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// Executor turns a rule's completed CloseOutputs into Alerts: it owns
// nothing stateful itself (the state.Machine does), but holds the
// compiled plan pieces and a handle on the window registry needed to
// resolve joins.
type Executor struct {
	RulePlan *plan.RulePlan
	Registry *window.Registry

	metrics *metrics.RuleMetrics
}

// New constructs an Executor for rp, resolving joins against registry.
func New(rp *plan.RulePlan, registry *window.Registry) *Executor {
	return &Executor{RulePlan: rp, Registry: registry, metrics: metrics.ForRule(rp.Name)}
}

// Fire evaluates entity/score/yield for a single CloseOutput (conv is
// applied by FireBatch, not here), and returns the resulting
// Alert plus whether it should actually be emitted — a runtime
// evaluation error (non-numeric score, absent entity id) drops the
// alert rather than emitting a malformed one, per spec §7.
func (ex *Executor) Fire(co state.CloseOutput, origin Origin, nowNanos int64) (Alert, bool) {
	leftCtx := BuildContext(co, ex.RulePlan.Match.Keys, nil)
	joinFields := ResolveJoins(ex.RulePlan.Joins, leftCtx, ex.Registry, nowNanos)
	ctx := BuildContext(co, ex.RulePlan.Match.Keys, joinFields)

	score, err := EvalScore(ex.RulePlan.Score.Expr, ctx)
	if err != nil {
		log.WithError(err).WithField("rule", ex.RulePlan.Name).Warn("dropping alert: score evaluation failed")
		return Alert{}, false
	}
	entityID, err := EvalEntityID(ex.RulePlan.Entity.EntityID, ctx)
	if err != nil {
		log.WithError(err).WithField("rule", ex.RulePlan.Name).Warn("dropping alert: entity_id evaluation failed")
		return Alert{}, false
	}

	firedAt := time.Unix(0, nowNanos).UTC()
	alert := Alert{
		WfxID:       EncodeAlertID(ex.RulePlan.Name, co.ScopeKey, firedAt),
		RuleName:    ex.RulePlan.Name,
		Score:       score,
		EntityType:  ex.RulePlan.Entity.EntityType,
		EntityID:    entityID,
		Origin:      origin,
		FiredAt:     firedAt,
		Fields:      EvalYieldFields(ex.RulePlan.Yield.Fields, ctx),
		YieldTarget: ex.RulePlan.Yield.TargetWindow,
	}
	if s, ok := alert.Fields["summary"]; ok {
		if str, isStr := s.AsString(); isStr {
			alert.Summary = str
		}
	}
	ex.metrics.AlertsEmitted.Inc()
	return alert, true
}

// FireBatch applies the rule's conv plan, if one is set, to outputs,
// then fires each surviving CloseOutput.
func (ex *Executor) FireBatch(outputs []state.CloseOutput, origin Origin, nowNanos int64) []Alert {
	if ex.RulePlan.Conv != nil {
		outputs = state.ApplyConv(ex.RulePlan.Conv, ex.RulePlan.Match.Keys, outputs)
	}
	alerts := make([]Alert, 0, len(outputs))
	for _, co := range outputs {
		if a, ok := ex.Fire(co, origin, nowNanos); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}
