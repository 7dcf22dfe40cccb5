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

package executor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/expr"
	"github.com/cockroachdb/wf-reactor/internal/rule/executor"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

func TestEncodeDecodeAlertIDRoundTrip(t *testing.T) {
	firedAt := time.Date(2024, 3, 1, 12, 0, 0, 123_000_000, time.UTC)
	keys := []value.Value{value.String("al|ce"), value.Number(7)}

	id := executor.EncodeAlertID("brute-force#detect", keys, firedAt)

	rule, decodedKeys, firedAtStr, ok := executor.DecodeAlertID(id)
	require.True(t, ok)
	assert.Equal(t, "brute-force#detect", rule)
	require.Len(t, decodedKeys, 2)
	assert.Equal(t, "al|ce", decodedKeys[0])
	assert.Equal(t, "7", decodedKeys[1])
	assert.Equal(t, "2024-03-01T12:00:00.123Z", firedAtStr)
}

func TestEvalScoreClampsToRange(t *testing.T) {
	e, err := expr.Parse("500")
	require.NoError(t, err)
	score, err := executor.EvalScore(e, map[string]value.Value{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
}

func TestEvalScoreErrorsOnNonNumeric(t *testing.T) {
	e, err := expr.Parse(`"not-a-number"`)
	require.NoError(t, err)
	_, err = executor.EvalScore(e, map[string]value.Value{})
	assert.Error(t, err)
}

func TestEvalEntityIDStringifies(t *testing.T) {
	e, err := expr.Parse("user")
	require.NoError(t, err)
	id, err := executor.EvalEntityID(e, map[string]value.Value{"user": value.String("alice")})
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
}
