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
	"bufio"
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
)

// StdoutSink writes each alert as a JSON line to stdout, for local/dev
// use where wiring a file path is unnecessary ceremony.
type StdoutSink struct {
	name    string
	mu      sync.Mutex
	w       *bufio.Writer
	metrics *metrics.SinkMetrics
}

// NewStdoutSink constructs a StdoutSink.
func NewStdoutSink(name string) *StdoutSink {
	return &StdoutSink{name: name, w: bufio.NewWriter(os.Stdout), metrics: metrics.ForSink(name)}
}

// SendStr writes data as one line and flushes.
func (s *StdoutSink) SendStr(_ context.Context, data string) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.WriteString(data)
	if err == nil {
		err = s.w.WriteByte('\n')
	}
	if err == nil {
		err = s.w.Flush()
	}
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SendErrors.Inc()
	}
	return err
}

// Stop flushes any buffered output. stdout itself is never closed.
func (s *StdoutSink) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}
