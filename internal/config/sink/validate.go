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

// Package sinkconfig validates that every yield target a compiled rule
// set can produce is actually covered by the sink configuration, so a
// rule referencing an unrouted window fails at config-load time
// instead of silently dropping alerts at runtime.
package sinkconfig

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/sink"
)

// ValidateCoverage checks that every yield target in yieldTargets
// matches at least one business group's window pattern, unless a
// default group is configured to catch the rest. It returns an error
// naming every uncovered target, or nil if all are covered.
func ValidateCoverage(yieldTargets []string, business []sink.BusinessGroup, hasDefault bool) error {
	var uncovered []string
	for _, target := range yieldTargets {
		matched := false
		for _, g := range business {
			if g.Windows.Matches(target) {
				matched = true
				break
			}
		}
		if !matched && !hasDefault {
			uncovered = append(uncovered, target)
		}
	}
	if len(uncovered) == 0 {
		return nil
	}
	sort.Strings(uncovered)
	return errors.Errorf("yield targets not covered by any business group or default group: %s",
		strings.Join(uncovered, ", "))
}
