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

package sink_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/sink"
)

type fakeSink struct {
	mu      sync.Mutex
	sent    []string
	stopped bool
	failNil error
}

func (f *fakeSink) SendStr(_ context.Context, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNil != nil {
		return f.failNil
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSink) Stop(_ context.Context) error {
	f.stopped = true
	return nil
}

func TestDispatchRoutesToMatchingBusinessGroup(t *testing.T) {
	ws, err := sink.NewWildSet([]string{"auth.*"})
	require.NoError(t, err)
	bus := &fakeSink{}
	def := &fakeSink{}
	d := sink.NewDispatcher(
		[]sink.BusinessGroup{{Name: "auth", Windows: ws, Sinks: []sink.Sink{bus}}},
		&sink.Group{Name: "default", Sinks: []sink.Sink{def}},
		nil,
	)

	matched := d.Dispatch(context.Background(), "auth.failed_logins", `{"a":1}`)
	assert.Equal(t, 1, matched)
	assert.Equal(t, []string{`{"a":1}`}, bus.sent)
	assert.Empty(t, def.sent)
}

func TestDispatchFallsBackToDefault(t *testing.T) {
	ws, err := sink.NewWildSet([]string{"auth.*"})
	require.NoError(t, err)
	bus := &fakeSink{}
	def := &fakeSink{}
	d := sink.NewDispatcher(
		[]sink.BusinessGroup{{Name: "auth", Windows: ws, Sinks: []sink.Sink{bus}}},
		&sink.Group{Name: "default", Sinks: []sink.Sink{def}},
		nil,
	)

	matched := d.Dispatch(context.Background(), "unrelated.target", `{"a":1}`)
	assert.Equal(t, 0, matched)
	assert.Empty(t, bus.sent)
	assert.Equal(t, []string{`{"a":1}`}, def.sent)
}

func TestDispatchTeesErrorsToErrorGroup(t *testing.T) {
	ws, err := sink.NewWildSet([]string{"*"})
	require.NoError(t, err)
	failing := &fakeSink{failNil: errors.New("boom")}
	errSink := &fakeSink{}
	d := sink.NewDispatcher(
		[]sink.BusinessGroup{{Name: "all", Windows: ws, Sinks: []sink.Sink{failing}}},
		nil,
		&sink.Group{Name: "errors", Sinks: []sink.Sink{errSink}},
	)

	d.Dispatch(context.Background(), "anything", `{"a":1}`)
	assert.Equal(t, []string{`{"a":1}`}, errSink.sent)
}

func TestStopAllStopsEveryGroup(t *testing.T) {
	ws, err := sink.NewWildSet([]string{"*"})
	require.NoError(t, err)
	bus, def, errS := &fakeSink{}, &fakeSink{}, &fakeSink{}
	d := sink.NewDispatcher(
		[]sink.BusinessGroup{{Name: "all", Windows: ws, Sinks: []sink.Sink{bus}}},
		&sink.Group{Name: "default", Sinks: []sink.Sink{def}},
		&sink.Group{Name: "errors", Sinks: []sink.Sink{errS}},
	)

	d.StopAll(context.Background())
	assert.True(t, bus.stopped)
	assert.True(t, def.stopped)
	assert.True(t, errS.stopped)
}
