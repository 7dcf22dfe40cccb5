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

package evict_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/evict"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

func TestSweepEvictsExpiredAcrossWindows(t *testing.T) {
	reg := window.NewRegistry()
	reg.Declare("fresh", window.Config{HasTimeColumn: true, Over: time.Minute})
	reg.Declare("stale", window.Config{HasTimeColumn: true, Over: time.Second})

	_, err := reg.Publish("fresh", window.Batch{Events: []event.Event{event.New(int64(time.Now().UnixNano()))}})
	require.NoError(t, err)
	_, err = reg.Publish("stale", window.Batch{Events: []event.Event{event.New(0)}})
	require.NoError(t, err)

	ev := evict.New(reg, time.Millisecond)
	report := ev.Sweep()

	assert.Equal(t, 1, report.PerWindow["stale"])
	_, hasFresh := report.PerWindow["fresh"]
	assert.False(t, hasFresh)
}
