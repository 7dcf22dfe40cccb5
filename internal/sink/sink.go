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

// Package sink implements the Sink Dispatcher (C7): a small capability
// interface every connector satisfies, concrete connectors for the
// kinds the engine ships with, and a dispatcher that routes alert JSON
// to business/default/error groups by wildcard match on the yield
// target.
package sink

import "context"

// A Sink accepts serialized alert JSON and can be asked to stop. It is
// shared across concurrent callers; implementations serialize their own
// sends internally rather than requiring the caller to lock.
type Sink interface {
	// SendStr delivers one already-serialized alert JSON line.
	SendStr(ctx context.Context, data string) error
	// Stop releases any resources the sink holds. Best-effort: callers
	// log but do not propagate individual stop errors.
	Stop(ctx context.Context) error
}
