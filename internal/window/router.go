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

package window

import (
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/event"
)

// Source describes where an ingested event should be published: the
// window name it belongs to, and the predicate (if any) that selects
// it from a shared ingest stream.
type Source struct {
	WindowName string
	Predicate  func(event.Event) bool
}

// Router fans a single ingest stream out to every Source whose
// predicate matches, publishing a one-event Batch to each matching
// window (C3's routing half: C2's Buffer handles retention once
// published). A nil predicate matches unconditionally.
type Router struct {
	registry *Registry
	sources  []Source
}

// NewRouter builds a Router over registry with the given sources.
func NewRouter(registry *Registry, sources []Source) *Router {
	return &Router{registry: registry, sources: sources}
}

// Route publishes ev to every window whose Source predicate matches,
// logging (but not failing on) a publish error against any single
// target so that one misconfigured window doesn't block delivery to
// the rest.
func (rt *Router) Route(ev event.Event) {
	for _, src := range rt.sources {
		if src.Predicate != nil && !src.Predicate(ev) {
			continue
		}
		if _, err := rt.registry.Publish(src.WindowName, Batch{Events: []event.Event{ev}}); err != nil {
			log.WithError(err).WithField("window", src.WindowName).Warn("failed to route event")
		}
	}
}

// RouteBatch is Route applied to every event in events, preserving
// order within each target window.
func (rt *Router) RouteBatch(events []event.Event) {
	for _, ev := range events {
		rt.Route(ev)
	}
}
