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

package datagen_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/datagen"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

func baseConfig(fields ...datagen.FieldSpec) datagen.Config {
	return datagen.Config{
		Fields:   fields,
		Count:    5,
		Seed:     42,
		Start:    time.Unix(1_700_000_000, 0).UTC(),
		Duration: 5 * time.Second,
	}
}

func TestGenerateProducesEvenlySpacedTimestamps(t *testing.T) {
	cfg := baseConfig(datagen.FieldSpec{Name: "score", Kind: datagen.FieldNumber})

	batch, err := datagen.Generate(cfg)
	require.NoError(t, err)
	require.Len(t, batch.Events, 5)

	for i := 1; i < len(batch.Events); i++ {
		assert.Equal(t, int64(time.Second), batch.Events[i].TimeNanos-batch.Events[i-1].TimeNanos)
	}
}

func TestGenerateIsDeterministicForAGivenSeed(t *testing.T) {
	cfg := baseConfig(datagen.FieldSpec{Name: "user", Kind: datagen.FieldString})

	a, err := datagen.Generate(cfg)
	require.NoError(t, err)
	b, err := datagen.Generate(cfg)
	require.NoError(t, err)

	for i := range a.Events {
		av, _ := a.Events[i].Get("user")
		bv, _ := b.Events[i].Get("user")
		assert.Equal(t, av, bv)
	}
}

func TestGenerateHonorsFieldOverride(t *testing.T) {
	cfg := baseConfig(datagen.FieldSpec{
		Name: "entity",
		Kind: datagen.FieldString,
		Override: func(_ *rand.Rand, _ int) value.Value {
			return value.String("fixed")
		},
	})

	batch, err := datagen.Generate(cfg)
	require.NoError(t, err)
	for _, e := range batch.Events {
		v, ok := e.Get("entity")
		require.True(t, ok)
		s, _ := v.AsString()
		assert.Equal(t, "fixed", s)
	}
}

func TestGenerateRejectsNegativeCount(t *testing.T) {
	cfg := baseConfig()
	cfg.Count = -1
	_, err := datagen.Generate(cfg)
	assert.Error(t, err)
}
