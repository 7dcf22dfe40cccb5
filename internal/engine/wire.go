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

//go:build wireinject

package engine

import (
	"github.com/google/wire"

	"github.com/cockroachdb/wf-reactor/internal/config"
	"github.com/cockroachdb/wf-reactor/internal/plan"
	"github.com/cockroachdb/wf-reactor/internal/window"
)

// Set is the provider set Wire(...) assembles into an Engine. It is
// only compiled under the wireinject build tag; wire_gen.go is the
// hand-written stand-in for what `go run github.com/google/wire/cmd/wire`
// would generate from it, since wire itself is never run in this
// exercise.
var Set = wire.NewSet(
	ProvideRegistry,
	ProvideRouter,
	ProvideEvictor,
	ProvideRuleTasks,
	ProvideDiagnostics,
	ProvideSinkDispatcher,
	ProvideAlertDispatcher,
	wire.Struct(new(Engine), "*"),
)

// Build is the injector Wire would generate a real body for.
func Build(
	cfg *config.Config,
	plans []*plan.RulePlan,
	windowConfigs map[string]window.Config,
	sinkBundle *config.SinkBundle,
	sources []window.Source,
) (*Engine, error) {
	panic(wire.Build(Set))
}
