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

// Package datagen synthesizes deterministic event batches for the
// core's own tests, standing in for the schema-driven scenario
// generator that builds rule-file test fixtures outside the core.
// It is test support only, not a shipped generator or CLI.
package datagen

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/value"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// FieldKind selects the shape of values FieldSpec generates, a
// stand-in for the schema file's chars/digit/float/bool/time field
// types collapsed onto the three value.Value kinds the expression
// language actually evaluates over.
type FieldKind int

// Field kinds a FieldSpec may generate.
const (
	FieldNumber FieldKind = iota
	FieldString
	FieldBool
)

// FieldSpec describes one generated field. Override, if set, replaces
// the built-in random generator for that field, mirroring the
// scenario language's per-field gen-expression overrides.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Override func(rng *rand.Rand, index int) value.Value
}

// Config parameterizes a generation run: the field list, how many
// events to produce, a deterministic seed, and the time range to
// spread them across (evenly spaced, oldest first).
type Config struct {
	Fields   []FieldSpec
	Count    int
	Seed     int64
	Start    time.Time
	Duration time.Duration
}

// Generate produces a window.Batch of Count events, fields populated
// per Fields and timestamps evenly spaced across [Start, Start+Duration).
// Two calls with an identical Config produce byte-identical output:
// the RNG is seeded and draws happen in a fixed field order, so a
// flaky test can always be reproduced from its seed.
func Generate(cfg Config) (window.Batch, error) {
	if cfg.Count < 0 {
		return window.Batch{}, errors.New("datagen: Count must be >= 0")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	interval := int64(0)
	if cfg.Count > 1 {
		interval = cfg.Duration.Nanoseconds() / int64(cfg.Count)
	}

	events := make([]event.Event, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		ts := cfg.Start.UnixNano() + interval*int64(i)
		e := event.New(ts)
		for _, f := range cfg.Fields {
			e.Fields[f.Name] = generateField(f, rng, i)
		}
		events[i] = e
	}
	return window.Batch{Events: events}, nil
}

func generateField(f FieldSpec, rng *rand.Rand, index int) value.Value {
	if f.Override != nil {
		return f.Override(rng, index)
	}
	switch f.Kind {
	case FieldNumber:
		return value.Number(rng.Float64() * 100)
	case FieldBool:
		return value.Bool(rng.Intn(2) == 1)
	default:
		return value.String(fmt.Sprintf("%s-%d", f.Name, rng.Intn(1<<20)))
	}
}
