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

// Package state implements the per-rule state machine (C5): scope-keyed
// instances, step/branch aggregation, and window-kind-specific close
// semantics (sliding reset, fixed bucket flush, session expiry).
package state

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/wf-reactor/internal/event"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

// instanceKeySep separates scope key components in their flattened
// string form. It is the ASCII unit separator, chosen so it cannot
// collide with any realistic field value.
const instanceKeySep = "\x1f"

// InstanceKey identifies one state-machine instance: a flattened scope
// key plus, for fixed windows, the bucket start time that key's
// current bucket belongs to. Sliding and session windows leave
// BucketStart unset — one instance per scope key for the life of the
// window.
type InstanceKey struct {
	ScopeKeyStr string
	BucketStart int64
	HasBucket   bool
}

// Sliding builds an InstanceKey for a sliding or session window.
func Sliding(scopeKey []value.Value) InstanceKey {
	return InstanceKey{ScopeKeyStr: scopeKeyString(scopeKey)}
}

// Fixed builds an InstanceKey for a fixed window's given bucket.
func Fixed(scopeKey []value.Value, bucketStart int64) InstanceKey {
	return InstanceKey{ScopeKeyStr: scopeKeyString(scopeKey), BucketStart: bucketStart, HasBucket: true}
}

func scopeKeyString(scopeKey []value.Value) string {
	parts := make([]string, len(scopeKey))
	for i, v := range scopeKey {
		parts[i] = valueToString(v)
	}
	return strings.Join(parts, instanceKeySep)
}

func valueToString(v value.Value) string {
	switch v.Kind() {
	case value.KindNumber:
		n, _ := v.AsNumber()
		return strconv.FormatFloat(n, 'g', -1, 64)
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	default:
		return ""
	}
}

// ExtractKey computes the scope key for ev arriving via alias, per the
// match clause's key fields or key-mapping table. It returns
// (nil, false) when any required key field is missing: a rule never
// starts or advances an instance for a partially-keyed event. An empty
// key list yields ([]value.Value{}, true) — the "shared instance"
// case, where every event in the window shares one scope.
func ExtractKey(ev event.Event, keys []string, keyMap []plan.KeyMapPlan, alias string) ([]value.Value, bool) {
	if len(keyMap) == 0 {
		return extractKeySimple(ev, keys)
	}

	var logicalNames []string
	seen := make(map[string]bool)
	for _, km := range keyMap {
		if !seen[km.LogicalName] {
			seen[km.LogicalName] = true
			logicalNames = append(logicalNames, km.LogicalName)
		}
	}
	if len(logicalNames) == 0 && len(keys) == 0 {
		return []value.Value{}, true
	}

	result := make([]value.Value, 0, len(logicalNames))
	for _, logical := range logicalNames {
		if v, ok := lookupMapped(keyMap, logical, alias, ev); ok {
			result = append(result, v)
			continue
		}
		if v, ok := ev.Get(logical); ok {
			result = append(result, v)
		}
	}

	if len(result) == 0 && len(keys) != 0 {
		return extractKeySimple(ev, keys)
	}
	if len(result) != len(logicalNames) {
		return nil, false
	}
	return result, true
}

func lookupMapped(keyMap []plan.KeyMapPlan, logical, alias string, ev event.Event) (value.Value, bool) {
	for _, km := range keyMap {
		if km.LogicalName == logical && km.SourceAlias == alias {
			return ev.Get(km.SourceField)
		}
	}
	return value.Value{}, false
}

func extractKeySimple(ev event.Event, keys []string) ([]value.Value, bool) {
	result := make([]value.Value, 0, len(keys))
	for _, k := range keys {
		v, ok := ev.Get(k)
		if !ok {
			return nil, false
		}
		result = append(result, v)
	}
	return result, true
}
