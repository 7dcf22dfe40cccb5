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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/config"
)

func TestSubstituteUsesEnvironmentValue(t *testing.T) {
	t.Setenv("WFX_HOST", "db.internal")
	out, err := config.Substitute([]byte(`dsn = "postgres://${WFX_HOST}/alerts"`))
	require.NoError(t, err)
	assert.Equal(t, `dsn = "postgres://db.internal/alerts"`, string(out))
}

func TestSubstituteFallsBackToDefault(t *testing.T) {
	out, err := config.Substitute([]byte(`path = "${WFX_UNSET_VAR:/var/log/alerts.jsonl}"`))
	require.NoError(t, err)
	assert.Equal(t, `path = "/var/log/alerts.jsonl"`, string(out))
}

func TestSubstituteErrorsOnMissingVarWithNoDefault(t *testing.T) {
	_, err := config.Substitute([]byte(`dsn = "${WFX_TOTALLY_UNSET}"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WFX_TOTALLY_UNSET")
}
