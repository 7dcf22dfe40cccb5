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

package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/window"
)

type windowFile struct {
	Window []WindowConfig `toml:"window"`
}

// LoadWindowConfigs reads a TOML file of [[window]] retention/lateness
// settings and converts each to a window.Config, keyed by name. Schema
// discovery (the schemaGlob flag) belongs to the out-of-scope DSL
// compiler; this loader only carries the per-window runtime knobs a
// compiled rule plan's bound windows need at Registry.Declare time.
func LoadWindowConfigs(path string) (map[string]window.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading window config %s", path)
	}
	var wf windowFile
	if _, err := toml.Decode(string(data), &wf); err != nil {
		return nil, errors.Wrapf(err, "parsing window config %s", path)
	}
	out := make(map[string]window.Config, len(wf.Window))
	for _, wc := range wf.Window {
		wc := wc
		bc, err := wc.ToBufferConfig()
		if err != nil {
			return nil, err
		}
		out[wc.Name] = bc
	}
	return out, nil
}
