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

package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/rule/state"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

func threeFailuresPlan() *plan.MatchPlan {
	return &plan.MatchPlan{
		Keys:       []string{"user"},
		WindowSpec: plan.WindowSpec{Kind: plan.KindSliding, Duration: 5 * time.Minute},
		EventSteps: []plan.Step{
			{Branches: []plan.Branch{{
				SourceAlias: "fail",
				Measure:     plan.MeasureCount,
				Cmp:         plan.CmpGe,
				Threshold:   expr.Number(3),
			}}},
		},
	}
}

func failEvent(user string, t int64) event.Event {
	return event.New(t).With("user", value.String(user))
}

func TestMachineAdvanceCompletesAfterThreshold(t *testing.T) {
	mp := threeFailuresPlan()
	m := state.NewMachine("three-fails", mp)

	r1 := m.Advance(failEvent("alice", 1), "fail")
	assert.False(t, r1.InstanceCompleted)
	r2 := m.Advance(failEvent("alice", 2), "fail")
	assert.False(t, r2.InstanceCompleted)
	r3 := m.Advance(failEvent("alice", 3), "fail")
	require.True(t, r3.InstanceCompleted)
	assert.Equal(t, 1, len(r3.CloseOutput.ScopeKey))
}

func TestMachineIgnoresUnmatchedAlias(t *testing.T) {
	mp := threeFailuresPlan()
	m := state.NewMachine("three-fails", mp)
	r := m.Advance(failEvent("bob", 1), "other-alias")
	assert.False(t, r.Matched)
}

func TestMachineScopesInstancesSeparately(t *testing.T) {
	mp := threeFailuresPlan()
	m := state.NewMachine("three-fails", mp)
	m.Advance(failEvent("alice", 1), "fail")
	m.Advance(failEvent("bob", 1), "fail")
	assert.Equal(t, 2, m.InstanceCount())
}

func TestScanExpiredAtRetiresSessionInstances(t *testing.T) {
	mp := &plan.MatchPlan{
		Keys:       []string{"user"},
		WindowSpec: plan.WindowSpec{Kind: plan.KindSession, Duration: time.Minute},
		EventSteps: []plan.Step{
			{Branches: []plan.Branch{{
				SourceAlias: "ev",
				Measure:     plan.MeasureCount,
				Cmp:         plan.CmpGe,
				Threshold:   expr.Number(100), // never satisfied via normal advance
			}}},
		},
	}
	m := state.NewMachine("session-rule", mp)
	m.Advance(failEvent("carol", 0), "ev")
	assert.Equal(t, 1, m.InstanceCount())

	out := m.ScanExpiredAt(int64(2 * time.Minute))
	require.Len(t, out, 1)
	assert.Equal(t, 0, m.InstanceCount())
}
