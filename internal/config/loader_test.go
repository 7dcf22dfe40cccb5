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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/config"
	sinkconfig "github.com/cockroachdb/wf-reactor/internal/config/sink"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadSinkConfigWiresFileSinksIntoBusinessAndDefaultGroups(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "sink.d", "file.toml"), `
[[connectors]]
id = "alerts_file"
type = "file"

[connectors.params]
path = "`+filepath.Join(root, "security.jsonl")+`"
`)
	writeFile(t, filepath.Join(root, "business.d", "security.toml"), `
[sink_group]
name = "security_output"
windows = ["security_*"]

[[sink_group.sinks]]
connect = "alerts_file"
`)
	writeFile(t, filepath.Join(root, "infra.d", "default.toml"), `
[sink_group]
name = "__default"

[[sink_group.sinks]]
connect = "alerts_file"
`)

	ctx, cancel := stopper.WithContext(context.Background())
	defer cancel()

	bundle, err := config.LoadSinkConfig(ctx, root)
	require.NoError(t, err)
	require.Len(t, bundle.Business, 1)
	assert.Equal(t, "security_output", bundle.Business[0].Name)
	assert.True(t, bundle.Business[0].Windows.Matches("security_alerts"))
	require.NotNil(t, bundle.Default)
	assert.True(t, bundle.HasDefault())
	assert.Nil(t, bundle.Error)
}

func TestLoadSinkConfigValidatesCoverageAgainstYieldTargets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sink.d", "file.toml"), `
[[connectors]]
id = "alerts_file"
type = "file"

[connectors.params]
path = "`+filepath.Join(root, "out.jsonl")+`"
`)
	writeFile(t, filepath.Join(root, "business.d", "security.toml"), `
[sink_group]
name = "security_output"
windows = ["security_*"]

[[sink_group.sinks]]
connect = "alerts_file"
`)

	ctx, cancel := stopper.WithContext(context.Background())
	defer cancel()

	bundle, err := config.LoadSinkConfig(ctx, root)
	require.NoError(t, err)

	err = sinkconfig.ValidateCoverage([]string{"other_alerts"}, bundle.Business, bundle.HasDefault())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other_alerts")
}

func TestLoadSinkConfigRejectsMissingDirectory(t *testing.T) {
	ctx, cancel := stopper.WithContext(context.Background())
	defer cancel()
	_, err := config.LoadSinkConfig(ctx, filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
