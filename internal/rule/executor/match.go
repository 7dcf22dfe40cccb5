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

package executor

import (
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/rule/state"
)

// FireFromAdvance fires an alert for a state.AdvanceResult that
// completed an instance purely by matching events (no close-path
// wait), which always reports OriginEvent.
func (ex *Executor) FireFromAdvance(result state.AdvanceResult, nowNanos int64) (Alert, bool) {
	if !result.InstanceCompleted {
		return Alert{}, false
	}
	return ex.Fire(result.CloseOutput, OriginEvent, nowNanos)
}

// originForWindowKind reports the close origin a scan-expired
// retirement should carry, keyed by the rule's window kind: session
// windows expire due to an inactivity timeout, fixed windows expire on
// their scheduled bucket flush.
func originForWindowKind(kind plan.WindowKind) Origin {
	switch kind {
	case plan.KindSession:
		return OriginCloseTimeout
	case plan.KindFixed:
		return OriginCloseFlush
	default:
		return OriginCloseFlush
	}
}

// FireFromExpiry fires alerts for every CloseOutput produced by a
// state.Machine.ScanExpiredAt sweep.
func (ex *Executor) FireFromExpiry(outputs []state.CloseOutput, nowNanos int64) []Alert {
	return ex.FireBatch(outputs, originForWindowKind(ex.RulePlan.Match.WindowSpec.Kind), nowNanos)
}

// FireFromShutdown fires alerts for every CloseOutput flushed because
// the engine is shutting down (origin close:eos), bypassing the normal
// expiry schedule so in-flight instances aren't silently discarded.
func (ex *Executor) FireFromShutdown(outputs []state.CloseOutput, nowNanos int64) []Alert {
	return ex.FireBatch(outputs, OriginCloseEOS, nowNanos)
}
