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

package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/cockroachdb/wf-reactor/internal/config"
	"github.com/cockroachdb/wf-reactor/internal/evict"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/rule/executor"
	"github.com/cockroachdb/wf-reactor/internal/rule/task"
	"github.com/cockroachdb/wf-reactor/internal/sink"
	"github.com/cockroachdb/wf-reactor/internal/util/diag"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// ProvideRegistry constructs an empty window.Registry. Every RulePlan's
// windows are declared into it by ProvideRuleTasks before any task
// starts draining, so the registry is never observed half-populated
// once Engine.Run begins.
func ProvideRegistry() *window.Registry {
	return window.NewRegistry()
}

// ProvideRouter builds the Router that fans ingested events out to
// windows. sources is supplied by the (out-of-core-scope) transport
// layer's stream-to-window index; an Engine with no transport wired in
// yet runs with an empty Router.
func ProvideRouter(registry *window.Registry, sources []window.Source) *window.Router {
	return window.NewRouter(registry, sources)
}

// ProvideEvictor builds the Evictor sweeping registry every interval.
func ProvideEvictor(registry *window.Registry, interval time.Duration) *evict.Evictor {
	return evict.New(registry, interval)
}

// ProvideRuleTasks declares every plan's bound windows into registry
// with windowConfig's retention/lateness settings, then constructs one
// Task per plan sharing alertCh and a single Limiter sized by
// executorParallelism (EngineConfig.ExecutorParallelism; <= 0 selects
// runtime.GOMAXPROCS, the same default the flag's help text documents).
func ProvideRuleTasks(
	plans []*plan.RulePlan,
	registry *window.Registry,
	windowConfigs map[string]window.Config,
	alertCh chan<- executor.Alert,
	sweepEvery time.Duration,
	executorParallelism int,
) []*task.Task {
	for _, rp := range plans {
		for _, name := range rp.WindowNames() {
			cfg, ok := windowConfigs[name]
			if !ok {
				cfg = window.Config{}
			}
			registry.Declare(name, cfg)
		}
	}

	n := executorParallelism
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	limiter := semaphore.NewWeighted(int64(n))

	tasks := make([]*task.Task, 0, len(plans))
	for _, rp := range plans {
		t := task.New(rp, registry, alertCh, sweepEvery)
		t.Limiter = limiter
		tasks = append(tasks, t)
	}
	return tasks
}

// ProvideDiagnostics builds a Diagnostics registry with one health
// check per rule task: a task is healthy as long as every window it
// binds to is still declared in registry. Windows and the evictor have
// no analogous per-instance health beyond "declared" / "running",
// which this already covers via each task's bound windows.
func ProvideDiagnostics(tasks []*task.Task, registry *window.Registry) *diag.Diagnostics {
	d := diag.New()
	for _, t := range tasks {
		t := t
		name := "rule:" + t.Plan.Name
		_ = d.Register(name, func(_ context.Context) error {
			for _, wn := range t.Plan.WindowNames() {
				if _, ok := registry.Lookup(wn); !ok {
					return errors.Errorf("window %q is no longer declared", wn)
				}
			}
			return nil
		})
	}
	return d
}

// ProvideSinkDispatcher builds the Dispatcher from a loaded sink bundle.
func ProvideSinkDispatcher(bundle *config.SinkBundle) *sink.Dispatcher {
	return sink.NewDispatcher(bundle.Business, bundle.Default, bundle.Error)
}

// ProvideAlertDispatcher builds the Pump draining alertCh into dispatcher.
func ProvideAlertDispatcher(dispatcher *sink.Dispatcher, alertCh <-chan executor.Alert) *sink.Pump {
	return sink.NewPump(dispatcher, alertCh)
}
