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

package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/config"
	"github.com/cockroachdb/wf-reactor/internal/engine"
	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/sink"
	"github.com/cockroachdb/wf-reactor/internal/value"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

type fakeSink struct {
	mu      sync.Mutex
	sent    []string
	stopped bool
}

func (f *fakeSink) SendStr(_ context.Context, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSink) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func threeFailuresRule() *plan.RulePlan {
	return &plan.RulePlan{
		Name:  "three-fails",
		Binds: []plan.Bind{{Alias: "fail", WindowName: "logins"}},
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
		Entity: plan.EntityPlan{EntityType: "user", EntityID: expr.Field(expr.Simple("user"))},
		Score:  plan.ScorePlan{Expr: expr.Number(90)},
		Yield:  plan.YieldPlan{TargetWindow: "security_alerts"},
	}
}

func TestBuildWiresRuleTaskThroughToSink(t *testing.T) {
	plans := []*plan.RulePlan{threeFailuresRule()}
	windowConfigs := map[string]window.Config{"logins": {}}

	ws, err := sink.NewWildSet([]string{"security_*"})
	require.NoError(t, err)
	fs := &fakeSink{}
	bundle := &config.SinkBundle{
		Business: []sink.BusinessGroup{{Name: "security", Windows: ws, Sinks: []sink.Sink{fs}}},
	}

	var cfg config.Config
	cfg.Engine.AlertChannelDepth = 4
	cfg.Engine.EvictInterval = time.Hour
	cfg.Engine.SweepInterval = time.Hour

	eng, err := engine.Build(&cfg, plans, windowConfigs, bundle, nil)
	require.NoError(t, err)
	require.Len(t, eng.Tasks, 1)
	require.NotNil(t, eng.Diag)
	assert.Empty(t, eng.Diag.RunAll(context.Background()))

	buf, ok := eng.Registry.Lookup("logins")
	require.True(t, ok)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, buf.Append(window.Batch{
			Events: []event.Event{event.New(i).With("user", value.String("alice"))},
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return len(fs.sent) == 1
	}, 2*time.Second, 10*time.Millisecond, "expected the fired alert to reach the fake sink")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Engine.Run did not return after cancellation")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.True(t, fs.stopped)
}
