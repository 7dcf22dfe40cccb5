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

package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/rule/executor"
	"github.com/cockroachdb/wf-reactor/internal/rule/task"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
	"github.com/cockroachdb/wf-reactor/internal/value"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

func threeFailuresRule() *plan.RulePlan {
	return &plan.RulePlan{
		Name: "three-fails",
		Binds: []plan.Bind{
			{Alias: "fail", WindowName: "logins"},
		},
		Match: plan.MatchPlan{
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
		},
		Entity: plan.EntityPlan{
			EntityType: "user",
			EntityID:   expr.Field(expr.Simple("user")),
		},
		Score: plan.ScorePlan{Expr: expr.Number(90)},
	}
}

func failEvent(user string, nanos int64) event.Event {
	return event.New(nanos).With("user", value.String(user))
}

func newTestRegistry(windowName string) *window.Registry {
	reg := window.NewRegistry()
	reg.Declare(windowName, window.Config{})
	return reg
}

func TestDrainOnceFiresAlertAfterThreshold(t *testing.T) {
	reg := newTestRegistry("logins")
	alertCh := make(chan executor.Alert, 4)
	tk := task.New(threeFailuresRule(), reg, alertCh, time.Minute)

	buf, ok := reg.Lookup("logins")
	require.True(t, ok)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, buf.Append(window.Batch{Events: []event.Event{failEvent("alice", i)}}))
	}

	tk.DrainOnce()

	select {
	case a := <-alertCh:
		assert.Equal(t, "three-fails", a.RuleName)
		assert.Equal(t, "alice", a.EntityID)
		assert.Equal(t, 90.0, a.Score)
		assert.Equal(t, executor.OriginEvent, a.Origin)
	default:
		t.Fatal("expected an alert to be fired")
	}
}

func TestDrainOnceSkipsFilteredEvents(t *testing.T) {
	reg := newTestRegistry("logins")
	alertCh := make(chan executor.Alert, 4)
	rp := threeFailuresRule()
	rp.Binds[0].Filter = expr.Bin(expr.OpEq, expr.Field(expr.Simple("status")), expr.StringLit("failed"))
	tk := task.New(rp, reg, alertCh, time.Minute)

	buf, _ := reg.Lookup("logins")
	for i := int64(1); i <= 3; i++ {
		ev := failEvent("alice", i).With("status", value.String("ok"))
		require.NoError(t, buf.Append(window.Batch{Events: []event.Event{ev}}))
	}

	tk.DrainOnce()

	select {
	case a := <-alertCh:
		t.Fatalf("expected no alert, got %+v", a)
	default:
	}
}

func TestDrainOnceAdvancesCursorAcrossCalls(t *testing.T) {
	reg := newTestRegistry("logins")
	alertCh := make(chan executor.Alert, 4)
	tk := task.New(threeFailuresRule(), reg, alertCh, time.Minute)

	buf, _ := reg.Lookup("logins")
	require.NoError(t, buf.Append(window.Batch{Events: []event.Event{failEvent("alice", 1)}}))
	tk.DrainOnce()
	select {
	case <-alertCh:
		t.Fatal("no alert expected after only one event")
	default:
	}

	require.NoError(t, buf.Append(window.Batch{Events: []event.Event{failEvent("alice", 2)}}))
	require.NoError(t, buf.Append(window.Batch{Events: []event.Event{failEvent("alice", 3)}}))
	tk.DrainOnce()

	select {
	case a := <-alertCh:
		assert.Equal(t, "alice", a.EntityID)
	default:
		t.Fatal("expected an alert after the third failure")
	}
}

func TestEnforceLimitsEvictsOldestInstance(t *testing.T) {
	reg := newTestRegistry("logins")
	alertCh := make(chan executor.Alert, 4)
	rp := threeFailuresRule()
	rp.Limits = &plan.LimitsPlan{MaxInstances: 1, OnExceed: plan.OnExceedEvictOldest}
	tk := task.New(rp, reg, alertCh, time.Minute)

	buf, _ := reg.Lookup("logins")
	require.NoError(t, buf.Append(window.Batch{Events: []event.Event{failEvent("alice", 1)}}))
	require.NoError(t, buf.Append(window.Batch{Events: []event.Event{failEvent("bob", 2)}}))
	tk.DrainOnce()

	assert.Equal(t, 1, tk.InstanceCount())
}

func TestFlushOnShutdownFiresCloseEOSAlerts(t *testing.T) {
	reg := newTestRegistry("sessions")
	alertCh := make(chan executor.Alert, 4)
	rp := &plan.RulePlan{
		Name:  "session-rule",
		Binds: []plan.Bind{{Alias: "ev", WindowName: "sessions"}},
		Match: plan.MatchPlan{
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
		},
		Entity: plan.EntityPlan{EntityType: "user", EntityID: expr.Field(expr.Simple("user"))},
		Score:  plan.ScorePlan{Expr: expr.Number(10)},
	}
	tk := task.New(rp, reg, alertCh, time.Minute)

	buf, _ := reg.Lookup("sessions")
	require.NoError(t, buf.Append(window.Batch{Events: []event.Event{failEvent("carol", 0)}}))
	tk.DrainOnce()

	tk.FlushOnShutdown()

	select {
	case a := <-alertCh:
		assert.Equal(t, executor.OriginCloseEOS, a.Origin)
		assert.Equal(t, "carol", a.EntityID)
	default:
		t.Fatal("expected a close:eos alert on shutdown flush")
	}
}

func TestRunPropagatesCancellationWhileBlockedOnLimiter(t *testing.T) {
	reg := newTestRegistry("logins")
	alertCh := make(chan executor.Alert, 4)
	tk := task.New(threeFailuresRule(), reg, alertCh, time.Hour)

	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1)) // hold the only slot so Run can never drain
	tk.Limiter = sem

	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := stopper.WithContext(parent)
	defer stop()
	cancel()

	err := tk.Run(ctx)
	assert.Error(t, err, "Run should surface the limiter's context-cancelled error rather than hang")
}
