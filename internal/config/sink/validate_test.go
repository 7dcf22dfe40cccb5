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

package sinkconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sinkconfig "github.com/cockroachdb/wf-reactor/internal/config/sink"
	"github.com/cockroachdb/wf-reactor/internal/sink"
)

func groups(t *testing.T, patterns ...string) []sink.BusinessGroup {
	t.Helper()
	var out []sink.BusinessGroup
	for _, p := range patterns {
		ws, err := sink.NewWildSet([]string{p})
		require.NoError(t, err)
		out = append(out, sink.BusinessGroup{Name: p, Windows: ws})
	}
	return out
}

func TestValidateCoveragePassesWhenEveryTargetMatchesAGroup(t *testing.T) {
	err := sinkconfig.ValidateCoverage(
		[]string{"security_alerts", "network_alerts"},
		groups(t, "security_*", "network_*"),
		false,
	)
	assert.NoError(t, err)
}

func TestValidateCoverageFailsForUncoveredTargetWithNoDefault(t *testing.T) {
	err := sinkconfig.ValidateCoverage(
		[]string{"security_alerts", "other_alerts"},
		groups(t, "security_*"),
		false,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other_alerts")
	assert.NotContains(t, err.Error(), "security_alerts")
}

func TestValidateCoveragePassesWhenDefaultGroupCatchesTheRest(t *testing.T) {
	err := sinkconfig.ValidateCoverage(
		[]string{"security_alerts", "other_alerts"},
		groups(t, "security_*"),
		true,
	)
	assert.NoError(t, err)
}
