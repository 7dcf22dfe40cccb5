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

// Package engine wires the core's components (C1-C7) into a single
// runnable unit: the Window Registry, the Evictor, one Rule Task per
// compiled plan, and the Sink Dispatcher's Alert-dispatcher Pump.
// Wiring itself follows the teacher's google/wire Factory convention
// (wire.go declares the provider set, wire_gen.go is the hand-written
// equivalent of generated code), and shutdown follows spec §5's LIFO
// ordering using one stopper.Context per shutdown stage so the stages
// can be stopped in sequence rather than all at once.
package engine

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/evict"
	"github.com/cockroachdb/wf-reactor/internal/rule/executor"
	"github.com/cockroachdb/wf-reactor/internal/rule/task"
	"github.com/cockroachdb/wf-reactor/internal/sink"
	"github.com/cockroachdb/wf-reactor/internal/util/diag"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// Engine aggregates one running instance of every core component.
type Engine struct {
	Registry   *window.Registry
	Router     *window.Router
	Evictor    *evict.Evictor
	Tasks      []*task.Task
	Dispatcher *sink.Dispatcher
	Pump       *sink.Pump
	AlertCh    chan executor.Alert
	Diag       *diag.Diagnostics
}

// Run starts every component and blocks until parent is done, then
// tears everything down in spec §5's shutdown order: rule tasks first
// (so they stop producing alerts), then the alert dispatcher (drained
// until the tasks' closed channel empties), then the sink dispatcher's
// stop_all, and the Evictor last. The Receiver stage named in that
// ordering is a transport concern outside the core's scope, so it has
// no analog here; Run begins at the stage the core owns.
func (e *Engine) Run(parent context.Context) error {
	if failed := e.Diag.RunAll(parent); len(failed) > 0 {
		for name, err := range failed {
			log.WithError(err).WithField("check", name).Warn("diagnostic check failed at startup")
		}
	}

	evictorCtx, evictorCancel := stopper.WithContext(parent)
	tasksCtx, tasksCancel := stopper.WithContext(parent)
	pumpCtx, pumpCancel := stopper.WithContext(parent)
	defer evictorCancel()
	defer tasksCancel()
	defer pumpCancel()

	evictorCtx.Go(func() error { return e.Evictor.Run(evictorCtx) })
	pumpCtx.Go(func() error { return e.Pump.Run(pumpCtx) })
	for _, t := range e.Tasks {
		t := t
		tasksCtx.Go(func() error { return t.Run(tasksCtx) })
	}

	<-parent.Done()
	log.Info("shutdown signal received; draining core components")

	tasksCtx.Stop()
	if err := tasksCtx.Wait(); err != nil {
		log.WithError(err).Warn("rule task exited with an error during shutdown")
	}

	close(e.AlertCh)
	if err := pumpCtx.Wait(); err != nil {
		log.WithError(err).Warn("alert pump exited with an error during shutdown")
	}

	e.Dispatcher.StopAll(context.Background())

	evictorCtx.Stop()
	return evictorCtx.Wait()
}
