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

	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
)

// FileSink appends each alert as one JSON line to an append-only file,
// the built-in sink spec §6's Output format names directly. Concurrent
// SendStr calls are serialized by mu.
type FileSink struct {
	name string
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer

	metrics *metrics.SinkMetrics
}

// NewFileSink opens (creating/appending to) path for JSONL writes.
func NewFileSink(name, path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening file sink %q", path)
	}
	return &FileSink{
		name:    name,
		f:       f,
		w:       bufio.NewWriter(f),
		metrics: metrics.ForSink(name),
	}, nil
}

// SendStr appends data as one line, flushing immediately so a reader
// tailing the file sees it without delay.
func (s *FileSink) SendStr(_ context.Context, data string) error {
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
		return errors.Wrapf(err, "writing to file sink %q", s.name)
	}
	return nil
}

// Stop flushes and closes the underlying file.
func (s *FileSink) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(err, "flushing file sink")
	}
	return errors.Wrap(s.f.Close(), "closing file sink")
}
