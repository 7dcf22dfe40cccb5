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

package planfile_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/planfile"
	"github.com/cockroachdb/wf-reactor/internal/rule/executor"
	"github.com/cockroachdb/wf-reactor/internal/value"
)

const threeFailuresTOML = `
[[rule]]
name = "three-fails"
score = "90"

[[rule.bind]]
alias = "fail"
window = "logins"

[rule.match]
keys = ["user"]
window = "sliding:5m"

[[rule.match.event]]
[[rule.match.event.branch]]
alias = "fail"
measure = "count"
cmp = "ge"
threshold = "3"

[rule.entity]
type = "user"
id = "fail.user"

[rule.yield]
target = "security_alerts"

[[rule.yield.field]]
name = "user"
value = "fail.user"
`

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCompilesStructureAndExpressions(t *testing.T) {
	path := writeTOML(t, threeFailuresTOML)

	plans, err := planfile.Load(path)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	rp := plans[0]
	assert.Equal(t, "three-fails", rp.Name)
	require.Len(t, rp.Binds, 1)
	assert.Equal(t, "fail", rp.Binds[0].Alias)
	assert.Equal(t, "logins", rp.Binds[0].WindowName)

	assert.Equal(t, plan.KindSliding, rp.Match.WindowSpec.Kind)
	assert.Equal(t, 5*time.Minute, rp.Match.WindowSpec.Duration)
	require.Len(t, rp.Match.EventSteps, 1)
	require.Len(t, rp.Match.EventSteps[0].Branches, 1)
	branch := rp.Match.EventSteps[0].Branches[0]
	assert.Equal(t, plan.MeasureCount, branch.Measure)
	assert.Equal(t, plan.CmpGe, branch.Cmp)

	n, err := executor.EvalScore(rp.Score.Expr, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(90), n)

	id, err := executor.EvalEntityID(rp.Entity.EntityID, map[string]value.Value{"fail.user": value.String("alice")})
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	assert.Equal(t, "security_alerts", rp.Yield.TargetWindow)
	require.Len(t, rp.Yield.Fields, 1)
	assert.Equal(t, "user", rp.Yield.Fields[0].Name)
}

func TestLoadRejectsUnknownWindowKind(t *testing.T) {
	path := writeTOML(t, `
[[rule]]
name = "bad"
score = "1"
[rule.match]
keys = ["user"]
window = "bogus:5m"
[rule.entity]
type = "user"
id = "1"
[rule.yield]
target = "x"
`)
	_, err := planfile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}
