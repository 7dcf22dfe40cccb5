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

// connectorFile is the shape of a sink.d/*.toml file: one or more
// connector definitions.
//
//	[[connectors]]
//	id = "alerts_file"
//	type = "file"
//
//	[connectors.params]
//	path = "alerts/security.jsonl"
type connectorFile struct {
	Connectors []connectorDef `toml:"connectors"`
}

type connectorDef struct {
	ID     string                 `toml:"id"`
	Kind   string                 `toml:"type"`
	Params map[string]interface{} `toml:"params"`
}

// routeFile is the shape of a business.d/*.toml or infra.d/*.toml file.
//
//	[sink_group]
//	name = "security_output"
//	windows = ["security_*"]
//
//	[[sink_group.sinks]]
//	connect = "alerts_file"
type routeFile struct {
	Version   string     `toml:"version"`
	SinkGroup routeGroup `toml:"sink_group"`
}

type routeGroup struct {
	Name    string          `toml:"name"`
	Windows stringOrArray   `toml:"windows"`
	Sinks   []routeSink     `toml:"sinks"`
}

type routeSink struct {
	Connect string                 `toml:"connect"`
	Name    string                 `toml:"name"`
	Params  map[string]interface{} `toml:"params"`
}

// defaultsBody is the shape of defaults.toml.
type defaultsBody struct {
	Tags []string `toml:"tags"`
}

// stringOrArray decodes a TOML value that may be a single string or an
// array of strings into a uniform []string, matching the loader's
// tolerance for `windows = "security_*"` as shorthand for
// `windows = ["security_*"]`.
type stringOrArray []string

// UnmarshalTOML implements the toml.Unmarshaler-like hook BurntSushi/toml
// looks for via interface{} decoding of primitive values.
func (s *stringOrArray) UnmarshalTOML(v interface{}) error {
	switch t := v.(type) {
	case string:
		*s = []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			str, ok := item.(string)
			if !ok {
				continue
			}
			out = append(out, str)
		}
		*s = out
	}
	return nil
}
