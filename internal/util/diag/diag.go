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

// Package diag provides a small named-health-check registry that
// engine components register themselves into (the engine registers one
// check per rule task), so a single diagnostics endpoint can report on all
// of them without each component knowing about HTTP or any other
// transport.
package diag

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Check reports a component's current health; a non-nil error marks it
// unhealthy.
type Check func(ctx context.Context) error

// Diagnostics is a registry of named health checks.
type Diagnostics struct {
	mu     sync.Mutex
	checks map[string]Check
}

// New constructs an empty Diagnostics registry.
func New() *Diagnostics {
	return &Diagnostics{checks: make(map[string]Check)}
}

// Register adds a named check, returning an error if the name is
// already registered (names are expected to be unique per component
// instance, e.g. "window:logins" or "rule:three-fails").
func (d *Diagnostics) Register(name string, check Check) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.checks[name]; exists {
		return errors.Errorf("diagnostic check %q already registered", name)
	}
	d.checks[name] = check
	return nil
}

// Unregister removes a named check, e.g. when a rule task or window is
// torn down at runtime.
func (d *Diagnostics) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.checks, name)
}

// RunAll runs every registered check and returns the ones that failed,
// keyed by name.
func (d *Diagnostics) RunAll(ctx context.Context) map[string]error {
	d.mu.Lock()
	snapshot := make(map[string]Check, len(d.checks))
	for name, check := range d.checks {
		snapshot[name] = check
	}
	d.mu.Unlock()

	failed := make(map[string]error)
	for name, check := range snapshot {
		if err := check(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}
