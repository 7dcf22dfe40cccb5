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

package sink

import (
	"context"

	"github.com/gobwas/glob"
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
)

// WildSet is a set of shell-style patterns (`*`, `?`, `[...]` classes)
// any one of which matching a string counts as a match, precompiled
// with gobwas/glob.
type WildSet struct {
	globs []glob.Glob
}

// NewWildSet compiles each pattern in patterns into a glob.Glob.
func NewWildSet(patterns []string) (WildSet, error) {
	ws := WildSet{globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return WildSet{}, err
		}
		ws.globs = append(ws.globs, g)
	}
	return ws, nil
}

// Matches reports whether any pattern in the set matches s.
func (ws WildSet) Matches(s string) bool {
	for _, g := range ws.globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// BusinessGroup routes alerts whose yield target matches Windows to
// every sink in Sinks.
type BusinessGroup struct {
	Name    string
	Windows WildSet
	Sinks   []Sink
}

// Group is an unconditional (default or error) sink group.
type Group struct {
	Name  string
	Sinks []Sink
}

// Dispatcher routes alert JSON to business/default/error sink groups,
// mirroring the original engine's three-step dispatch(window_name,
// alert_json) routing logic exactly.
type Dispatcher struct {
	business []BusinessGroup
	def      *Group
	errGroup *Group
}

// NewDispatcher constructs a Dispatcher from its three groupings.
// def and errGroup may be nil (no default/error group configured).
func NewDispatcher(business []BusinessGroup, def, errGroup *Group) *Dispatcher {
	return &Dispatcher{business: business, def: def, errGroup: errGroup}
}

// Dispatch routes alertJSON by yieldTarget: every business group whose
// wildcard set matches receives it; if none match, the default group
// does; if any send failed, the error group additionally receives it
// (its own errors are logged, not propagated). Returns the number of
// business groups that matched, per spec §4.7 step 4.
func (d *Dispatcher) Dispatch(ctx context.Context, yieldTarget, alertJSON string) int {
	matched := 0
	hadError := false

	for _, g := range d.business {
		if !g.Windows.Matches(yieldTarget) {
			continue
		}
		matched++
		metrics.ForSink(g.Name).DispatchMatches.Inc()
		if sendToGroup(ctx, g.Name, g.Sinks, alertJSON) {
			hadError = true
		}
	}

	if matched == 0 && d.def != nil {
		if sendToGroup(ctx, d.def.Name, d.def.Sinks, alertJSON) {
			hadError = true
		}
	}

	if hadError && d.errGroup != nil {
		sendToGroup(ctx, d.errGroup.Name, d.errGroup.Sinks, alertJSON)
	}

	return matched
}

// sendToGroup sends alertJSON to every sink in sinks, logging (not
// stopping on) individual failures, and reports whether any send
// failed.
func sendToGroup(ctx context.Context, groupName string, sinks []Sink, alertJSON string) bool {
	hadError := false
	for _, s := range sinks {
		if err := s.SendStr(ctx, alertJSON); err != nil {
			log.WithError(err).WithField("group", groupName).Warn("sink send failed")
			hadError = true
		}
	}
	return hadError
}

// StopAll calls Stop on every sink across all groups, logging but not
// propagating individual errors, for a best-effort drain on shutdown.
func (d *Dispatcher) StopAll(ctx context.Context) {
	for _, g := range d.business {
		stopGroup(ctx, g.Name, g.Sinks)
	}
	if d.def != nil {
		stopGroup(ctx, d.def.Name, d.def.Sinks)
	}
	if d.errGroup != nil {
		stopGroup(ctx, d.errGroup.Name, d.errGroup.Sinks)
	}
}

func stopGroup(ctx context.Context, groupName string, sinks []Sink) {
	for _, s := range sinks {
		if err := s.Stop(ctx); err != nil {
			log.WithError(err).WithField("group", groupName).Warn("sink stop failed")
		}
	}
}
