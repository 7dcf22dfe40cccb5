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

// Package config binds the engine's command-line and on-disk
// configuration surface: runtime flags via pflag, and the sinks/
// directory tree via BurntSushi/toml, following the teacher's
// Bind/Preflight Config idiom (see internal/source/server/config.go).
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/cockroachdb/wf-reactor/internal/window"
)

// EngineConfig holds the runtime knobs named in the configuration
// surface: executor parallelism, per-rule execution timeout, and the
// glob patterns used to discover schema and rule files.
type EngineConfig struct {
	ExecutorParallelism int
	RuleExecTimeout     time.Duration
	SchemaGlob          string
	RuleGlob            string
	AlertChannelDepth   int
	EvictInterval       time.Duration
	SweepInterval       time.Duration
}

// Bind registers EngineConfig's flags.
func (c *EngineConfig) Bind(flags *pflag.FlagSet) {
	flags.IntVar(&c.ExecutorParallelism, "executorParallelism", 0,
		"number of rule tasks to run concurrently; 0 selects runtime.GOMAXPROCS")
	flags.DurationVar(&c.RuleExecTimeout, "ruleExecTimeout", 2*time.Second,
		"rule executor timeout; validated as positive, but not applied to executor invocations")
	flags.StringVar(&c.SchemaGlob, "schemaGlob", "schemas/*.wfs",
		"glob pattern for schema files")
	flags.StringVar(&c.RuleGlob, "ruleGlob", "rules/*.wfl",
		"glob pattern for rule files")
	flags.IntVar(&c.AlertChannelDepth, "alertChannelDepth", 64,
		"capacity of the bounded alert channel shared by all rule tasks")
	flags.DurationVar(&c.EvictInterval, "evictInterval", 5*time.Second,
		"how often the Evictor sweeps every window for expired batches")
	flags.DurationVar(&c.SweepInterval, "sweepInterval", time.Second,
		"how often each rule task scans for close-path expiry (timeouts, session gaps)")
}

// Preflight validates EngineConfig after flags are parsed.
func (c *EngineConfig) Preflight() error {
	if c.ExecutorParallelism < 0 {
		return errors.New("executorParallelism must be >= 0")
	}
	if c.RuleExecTimeout <= 0 {
		return errors.New("ruleExecTimeout must be positive")
	}
	if c.SchemaGlob == "" || c.RuleGlob == "" {
		return errors.New("schemaGlob and ruleGlob must be set")
	}
	if c.AlertChannelDepth <= 0 {
		return errors.New("alertChannelDepth must be positive")
	}
	if c.EvictInterval <= 0 {
		return errors.New("evictInterval must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweepInterval must be positive")
	}
	return nil
}

// ServerConfig is the listener the Receiver binds to.
type ServerConfig struct {
	Listen string
}

// Bind registers ServerConfig's flags.
func (c *ServerConfig) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.Listen, "listen", ":26260", "the network address the receiver listens on")
}

// Preflight validates ServerConfig after flags are parsed.
func (c *ServerConfig) Preflight() error {
	if c.Listen == "" {
		return errors.New("listen unset")
	}
	return nil
}

// WindowConfig is the on-disk representation of a single window's
// retention and lateness knobs, translated to window.Config by
// ToBufferConfig once LatePolicy's textual form is validated.
type WindowConfig struct {
	Name            string
	MaxWindowBytes  int
	WatermarkDelay  time.Duration
	AllowedLateness time.Duration
	LatePolicy      string // "drop" | "revise" | "side_output"
	HasTimeColumn   bool
	Over            time.Duration
}

// ToBufferConfig converts the on-disk representation to the runtime
// window.Config the Buffer constructor expects.
func (w *WindowConfig) ToBufferConfig() (window.Config, error) {
	var policy window.LatePolicy
	switch w.LatePolicy {
	case "", "drop":
		policy = window.LatePolicyDrop
	case "revise":
		policy = window.LatePolicyRevise
	case "side_output":
		policy = window.LatePolicySideOutput
	default:
		return window.Config{}, errors.Errorf("window %q: unknown late_policy %q", w.Name, w.LatePolicy)
	}
	return window.Config{
		Over:            w.Over,
		MaxBytes:        w.MaxWindowBytes,
		AllowedLateness: w.AllowedLateness,
		WatermarkDelay:  w.WatermarkDelay,
		LatePolicy:      policy,
		HasTimeColumn:   w.HasTimeColumn,
	}, nil
}

// Config is the root configuration object: the teacher's Config
// idiom, generalized to aggregate wf-reactor's engine, server, and
// sink-directory settings instead of a single CDC target.
type Config struct {
	Engine EngineConfig
	Server ServerConfig

	// SinkConfigDir points at the sinks/ directory described in §6:
	// sink.d/, business.d/, infra.d/, defaults.toml.
	SinkConfigDir string
}

// Bind registers every sub-config's flags onto flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	c.Engine.Bind(flags)
	c.Server.Bind(flags)
	flags.StringVar(&c.SinkConfigDir, "sinkConfigDir", "sinks",
		"path to the sinks/ directory (sink.d/, business.d/, infra.d/, defaults.toml)")
}

// Preflight validates the aggregate configuration once flags have
// been parsed, running each sub-config's own Preflight in turn.
func (c *Config) Preflight() error {
	if err := c.Engine.Preflight(); err != nil {
		return errors.Wrap(err, "engine config")
	}
	if err := c.Server.Preflight(); err != nil {
		return errors.Wrap(err, "server config")
	}
	if c.SinkConfigDir == "" {
		return errors.New("sinkConfigDir unset")
	}
	return nil
}
