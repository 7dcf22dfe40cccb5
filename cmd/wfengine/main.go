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

// Command wfengine runs the windowed rule engine end to end: it loads
// compiled rule plans and the sinks/ directory, wires Registry, Router,
// Evictor, rule tasks, and the Sink Dispatcher together, and runs until
// it receives SIGINT/SIGTERM. The rule DSL front end (.wfl -> RulePlan)
// and the transport Receiver are out of core scope (spec §1); this
// binary starts from an already-compiled rule-plan file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/config"
	sinkconfig "github.com/cockroachdb/wf-reactor/internal/config/sink"
	"github.com/cockroachdb/wf-reactor/internal/engine"
	"github.com/cockroachdb/wf-reactor/internal/planfile"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("wfengine exited with an error")
	}
}

func run() error {
	var cfg config.Config
	var rulePlanFile, windowConfigFile string
	var logLevel string

	flags := pflag.NewFlagSet("wfengine", pflag.ExitOnError)
	cfg.Bind(flags)
	flags.StringVar(&rulePlanFile, "rulePlanFile", "rules.toml",
		"path to a TOML file of already-compiled rule plans")
	flags.StringVar(&windowConfigFile, "windowConfigFile", "windows.toml",
		"path to a TOML file of per-window retention/lateness settings")
	flags.StringVar(&logLevel, "logLevel", "info", "logrus level: trace|debug|info|warn|error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if err := cfg.Preflight(); err != nil {
		return err
	}

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	plans, err := planfile.Load(rulePlanFile)
	if err != nil {
		return err
	}
	log.WithField("count", len(plans)).Info("loaded rule plans")

	windowConfigs, err := config.LoadWindowConfigs(windowConfigFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinkCtx, cancelSinkCtx := stopper.WithContext(ctx)
	defer cancelSinkCtx()
	bundle, err := config.LoadSinkConfig(sinkCtx, cfg.SinkConfigDir)
	if err != nil {
		return err
	}

	targets := make([]string, 0, len(plans))
	for _, rp := range plans {
		targets = append(targets, rp.Yield.TargetWindow)
	}
	if err := sinkconfig.ValidateCoverage(targets, bundle.Business, bundle.HasDefault()); err != nil {
		return err
	}

	eng, err := engine.Build(&cfg, plans, windowConfigs, bundle, nil)
	if err != nil {
		return err
	}

	log.WithField("listen", cfg.Server.Listen).Info("wfengine starting; waiting for signal to stop")
	return eng.Run(ctx)
}
