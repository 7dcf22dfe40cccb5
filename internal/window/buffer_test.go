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

package window_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/value"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

func evAt(nanos int64) event.Event { return event.New(nanos) }

func TestAppendWithWatermarkAdvancesAndRejectsLate(t *testing.T) {
	b := window.NewBuffer("w", window.Config{
		HasTimeColumn:   true,
		AllowedLateness: 5 * time.Second,
		WatermarkDelay:  0,
	})

	outcome, err := b.AppendWithWatermark(window.Batch{Events: []event.Event{evAt(int64(10 * time.Second))}})
	require.NoError(t, err)
	assert.Equal(t, window.AppendOutcomeAppended, outcome)
	assert.Equal(t, int64(10*time.Second), b.WatermarkNanos())

	// Now arrives well behind the watermark minus allowed lateness.
	outcome, err = b.AppendWithWatermark(window.Batch{Events: []event.Event{evAt(int64(1 * time.Second))}})
	require.NoError(t, err)
	assert.Equal(t, window.AppendOutcomeDroppedLate, outcome)
}

func TestAppendWithWatermarkReviseAppendsAnyway(t *testing.T) {
	b := window.NewBuffer("w", window.Config{
		HasTimeColumn:   true,
		AllowedLateness: 5 * time.Second,
		LatePolicy:      window.LatePolicyRevise,
	})
	_, err := b.AppendWithWatermark(window.Batch{Events: []event.Event{evAt(int64(10 * time.Second))}})
	require.NoError(t, err)

	outcome, err := b.AppendWithWatermark(window.Batch{Events: []event.Event{evAt(int64(1 * time.Second))}})
	require.NoError(t, err)
	assert.Equal(t, window.AppendOutcomeAppended, outcome)
	assert.Equal(t, 2, b.TotalEvents())
}

func TestEvictExpired(t *testing.T) {
	b := window.NewBuffer("w", window.Config{HasTimeColumn: true, Over: 10 * time.Second})
	require.NoError(t, b.Append(window.Batch{Events: []event.Event{evAt(int64(1 * time.Second))}}))
	require.NoError(t, b.Append(window.Batch{Events: []event.Event{evAt(int64(30 * time.Second))}}))

	n := b.EvictExpired(int64(32 * time.Second))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, b.TotalEvents())
}

func TestReadSinceDetectsGap(t *testing.T) {
	oneBatch := window.Batch{Events: []event.Event{evAt(0)}}.ByteSize()
	b := window.NewBuffer("w", window.Config{MaxBytes: oneBatch})
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Append(window.Batch{Events: []event.Event{evAt(int64(i))}}))
	}
	// MaxBytes holds exactly one batch, so every append evicts the
	// batch before it.
	batches, cursor, gap := b.ReadSince(0)
	assert.True(t, gap)
	assert.NotEmpty(t, batches)
	assert.Equal(t, b.NextSeq(), cursor)
}

func TestRegistryPublishAndAwait(t *testing.T) {
	r := window.NewRegistry()
	r.Declare("w", window.Config{})

	gen, ch, err := r.Await("w")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	_, err = r.Publish("w", window.Batch{Events: []event.Event{evAt(0)}})
	require.NoError(t, err)

	select {
	case <-ch:
	default:
		t.Fatal("expected Await channel to be closed after Publish")
	}
}

func TestRouterRoutesToMatchingWindows(t *testing.T) {
	r := window.NewRegistry()
	loginBuf := r.Declare("logins", window.Config{})
	allBuf := r.Declare("all", window.Config{})

	rt := window.NewRouter(r, []window.Source{
		{WindowName: "logins", Predicate: func(e event.Event) bool {
			v, ok := e.Get("kind")
			s, _ := v.AsString()
			return ok && s == "login"
		}},
		{WindowName: "all"},
	})

	ev := event.New(0).With("kind", value.String("login"))
	rt.Route(ev)

	assert.Equal(t, 1, loginBuf.TotalEvents())
	assert.Equal(t, 1, allBuf.TotalEvents())
}
