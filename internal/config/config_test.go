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
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/wf-reactor/internal/config"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

func TestConfigBindAndPreflightDefaults(t *testing.T) {
	var c config.Config
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Bind(flags)
	require.NoError(t, flags.Parse(nil))
	assert.NoError(t, c.Preflight())
	assert.Equal(t, "sinks", c.SinkConfigDir)
	assert.Equal(t, 64, c.Engine.AlertChannelDepth)
	assert.Equal(t, 5*time.Second, c.Engine.EvictInterval)
	assert.Equal(t, time.Second, c.Engine.SweepInterval)
}

func TestConfigPreflightRejectsZeroRuleExecTimeout(t *testing.T) {
	var c config.Config
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Bind(flags)
	require.NoError(t, flags.Parse([]string{"--ruleExecTimeout=0s"}))
	assert.Error(t, c.Preflight())
}

func TestWindowConfigToBufferConfigMapsLatePolicy(t *testing.T) {
	wc := config.WindowConfig{Name: "logins", LatePolicy: "revise", AllowedLateness: 30 * time.Second}
	bc, err := wc.ToBufferConfig()
	require.NoError(t, err)
	assert.Equal(t, window.LatePolicyRevise, bc.LatePolicy)
	assert.Equal(t, 30*time.Second, bc.AllowedLateness)
}

func TestWindowConfigToBufferConfigRejectsUnknownLatePolicy(t *testing.T) {
	wc := config.WindowConfig{Name: "logins", LatePolicy: "bogus"}
	_, err := wc.ToBufferConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}
