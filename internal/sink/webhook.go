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
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
)

// WebhookSink POSTs each alert's JSON body to a configured HTTP
// endpoint, once per alert and without retry; a failed POST is
// returned as a send error. It uses the standard net/http.Client (see
// DESIGN.md).
type WebhookSink struct {
	name    string
	url     string
	client  *http.Client
	metrics *metrics.SinkMetrics
}

// NewWebhookSink constructs a WebhookSink posting to url with timeout
// bounding each send.
func NewWebhookSink(name, url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		name:    name,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics.ForSink(name),
	}
}

// SendStr POSTs data as the request body with Content-Type
// application/json; a non-2xx response is a send error.
func (s *WebhookSink) SendStr(ctx context.Context, data string) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(data))
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "building webhook request for sink %q", s.name)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "posting to webhook sink %q", s.name)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.metrics.SendErrors.Inc()
		return errors.Errorf("webhook sink %q: unexpected status %d", s.name, resp.StatusCode)
	}
	return nil
}

// Stop closes the http.Client's idle connections; the client owns no
// other long-lived connection that needs an explicit close.
func (s *WebhookSink) Stop(_ context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}
