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

// Package metrics centralizes the Prometheus vector definitions shared
// across the engine's components (windows, rule tasks, sinks), and the
// per-name handle caches that let call sites hold a bound counter
// instead of re-resolving label values on every hot-path call.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets is the shared histogram bucket set for
// duration-flavored metrics throughout the engine.
var LatencyBuckets = []float64{
	.001, .002, .005, .01, .02, .05, .1, .2, .5, 1, 2, 5, 10, 20, 50,
}

// WindowLabels names the label used on window-scoped vectors.
var WindowLabels = []string{"window"}

// RuleLabels names the label used on rule-scoped vectors.
var RuleLabels = []string{"rule"}

// SinkLabels names the label used on sink-scoped vectors.
var SinkLabels = []string{"sink"}

var (
	windowAppendedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_window_appended_events_total",
		Help: "number of events successfully appended to a window",
	}, WindowLabels)
	windowDroppedLate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_window_dropped_late_total",
		Help: "number of batches dropped for arriving later than the allowed lateness",
	}, WindowLabels)
	windowBufferBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wfreactor_window_buffer_bytes",
		Help: "estimated current memory footprint of a window's buffer",
	}, WindowLabels)
	windowEvictedTimeBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_window_evicted_time_bytes_total",
		Help: "bytes evicted from a window due to retention (time) expiry",
	}, WindowLabels)
	windowEvictedMemoryBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_window_evicted_memory_bytes_total",
		Help: "bytes evicted from a window due to memory pressure",
	}, WindowLabels)
	windowCursorGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_window_cursor_gaps_total",
		Help: "number of times a reader's cursor fell behind eviction",
	}, WindowLabels)
)

// WindowMetrics is a window's bound metric handles.
type WindowMetrics struct {
	AppendedEvents     prometheus.Counter
	DroppedLate        prometheus.Counter
	BufferBytes        prometheus.Gauge
	EvictedTimeBytes   prometheus.Counter
	EvictedMemoryBytes prometheus.Counter
	CursorGaps         prometheus.Counter
}

var (
	windowMetricsMu sync.Mutex
	windowMetrics   = make(map[string]*WindowMetrics)
)

// ForWindow returns the (cached) bound metric handles for the named
// window, creating them on first use.
func ForWindow(name string) *WindowMetrics {
	windowMetricsMu.Lock()
	defer windowMetricsMu.Unlock()
	if m, ok := windowMetrics[name]; ok {
		return m
	}
	m := &WindowMetrics{
		AppendedEvents:     windowAppendedEvents.WithLabelValues(name),
		DroppedLate:        windowDroppedLate.WithLabelValues(name),
		BufferBytes:        windowBufferBytes.WithLabelValues(name),
		EvictedTimeBytes:   windowEvictedTimeBytes.WithLabelValues(name),
		EvictedMemoryBytes: windowEvictedMemoryBytes.WithLabelValues(name),
		CursorGaps:         windowCursorGaps.WithLabelValues(name),
	}
	windowMetrics[name] = m
	return m
}

var (
	ruleExecDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wfreactor_rule_exec_duration_seconds",
		Help:    "duration of a single rule task evaluation pass",
		Buckets: LatencyBuckets,
	}, RuleLabels)
	ruleExecTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_rule_exec_timeouts_total",
		Help: "number of rule evaluation passes that exceeded their deadline",
	}, RuleLabels)
	ruleAlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_rule_alerts_emitted_total",
		Help: "number of alerts emitted by a rule",
	}, RuleLabels)
	ruleInstancesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wfreactor_rule_instances_active",
		Help: "number of live state-machine instances for a rule",
	}, RuleLabels)
	ruleInstancesEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_rule_instances_evicted_total",
		Help: "number of instances evicted due to limits.max_instances",
	}, RuleLabels)
	ruleThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_rule_throttled_total",
		Help: "number of evaluations throttled by limits.max_throttle_hz",
	}, RuleLabels)
)

// RuleMetrics is a rule's bound metric handles.
type RuleMetrics struct {
	ExecDuration     prometheus.Observer
	ExecTimeouts     prometheus.Counter
	AlertsEmitted    prometheus.Counter
	InstancesActive  prometheus.Gauge
	InstancesEvicted prometheus.Counter
	Throttled        prometheus.Counter
}

var (
	ruleMetricsMu sync.Mutex
	ruleMetricsC  = make(map[string]*RuleMetrics)
)

// ForRule returns the (cached) bound metric handles for the named
// rule, creating them on first use.
func ForRule(name string) *RuleMetrics {
	ruleMetricsMu.Lock()
	defer ruleMetricsMu.Unlock()
	if m, ok := ruleMetricsC[name]; ok {
		return m
	}
	m := &RuleMetrics{
		ExecDuration:     ruleExecDuration.WithLabelValues(name),
		ExecTimeouts:     ruleExecTimeouts.WithLabelValues(name),
		AlertsEmitted:    ruleAlertsEmitted.WithLabelValues(name),
		InstancesActive:  ruleInstancesActive.WithLabelValues(name),
		InstancesEvicted: ruleInstancesEvicted.WithLabelValues(name),
		Throttled:        ruleThrottled.WithLabelValues(name),
	}
	ruleMetricsC[name] = m
	return m
}

var (
	sinkSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_sink_send_errors_total",
		Help: "number of alert send failures for a sink",
	}, SinkLabels)
	sinkSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wfreactor_sink_send_duration_seconds",
		Help:    "duration of a sink's Send call",
		Buckets: LatencyBuckets,
	}, SinkLabels)
	sinkDispatchMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wfreactor_sink_dispatch_matches_total",
		Help: "number of times an alert matched a sink's routing glob",
	}, SinkLabels)
)

// SinkMetrics is a sink's bound metric handles.
type SinkMetrics struct {
	SendErrors      prometheus.Counter
	SendDuration    prometheus.Observer
	DispatchMatches prometheus.Counter
}

var (
	sinkMetricsMu sync.Mutex
	sinkMetricsC  = make(map[string]*SinkMetrics)
)

// ForSink returns the (cached) bound metric handles for the named
// sink, creating them on first use.
func ForSink(name string) *SinkMetrics {
	sinkMetricsMu.Lock()
	defer sinkMetricsMu.Unlock()
	if m, ok := sinkMetricsC[name]; ok {
		return m
	}
	m := &SinkMetrics{
		SendErrors:      sinkSendErrors.WithLabelValues(name),
		SendDuration:    sinkSendDuration.WithLabelValues(name),
		DispatchMatches: sinkDispatchMatches.WithLabelValues(name),
	}
	sinkMetricsC[name] = m
	return m
}
