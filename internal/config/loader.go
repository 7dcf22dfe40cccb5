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
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/sink"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
)

// SinkBundle is the fully materialized result of loading a sinks/
// directory: live sink.Sink instances wired into business, default,
// and error groups, ready to hand to sink.NewDispatcher.
type SinkBundle struct {
	Business []sink.BusinessGroup
	Default  *sink.Group
	Error    *sink.Group
}

// HasDefault reports whether a default group was configured, the
// fact ValidateCoverage needs to decide whether an unmatched yield
// target is actually an error.
func (b *SinkBundle) HasDefault() bool {
	return b.Default != nil
}

// LoadSinkConfig loads the complete sink configuration from a sinks/
// root directory structured as:
//
//	sinks/
//	├── sink.d/       connector definitions (*.toml)
//	├── business.d/   business routing groups (*.toml)
//	├── infra.d/
//	│   ├── default.toml
//	│   └── error.toml
//	└── defaults.toml
//
// Every *.toml file is passed through Substitute before parsing, so
// connection strings may reference ${VAR}/${VAR:default}. Sinks that
// own a database connection (postgres/redshift/mysql) open their pool
// immediately, scoped to ctx, so a misconfigured DSN fails at load
// time rather than on the first alert.
func LoadSinkConfig(ctx *stopper.Context, root string) (*SinkBundle, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("sink config directory does not exist: %s", root)
	}

	connectors, err := loadConnectorDefs(filepath.Join(root, "sink.d"))
	if err != nil {
		return nil, err
	}

	if err := logDefaults(root); err != nil {
		return nil, err
	}

	business, err := loadBusinessGroups(ctx, filepath.Join(root, "business.d"), connectors)
	if err != nil {
		return nil, err
	}

	def, err := loadInfraGroup(ctx, filepath.Join(root, "infra.d", "default.toml"), connectors)
	if err != nil {
		return nil, err
	}
	errGroup, err := loadInfraGroup(ctx, filepath.Join(root, "infra.d", "error.toml"), connectors)
	if err != nil {
		return nil, err
	}

	return &SinkBundle{Business: business, Default: def, Error: errGroup}, nil
}

// loadConnectorDefs reads every *.toml file in dir and returns
// connector definitions keyed by id. A missing directory is not an
// error and yields no connectors; any group sink that then names a
// connector fails in buildSinks.
func loadConnectorDefs(dir string) (map[string]connectorDef, error) {
	result := make(map[string]connectorDef)

	paths, err := globTOML(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		raw, err := readSubstituted(path)
		if err != nil {
			return nil, err
		}
		var file connectorFile
		if _, err := toml.Decode(string(raw), &file); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
		for _, c := range file.Connectors {
			if _, exists := result[c.ID]; exists {
				return nil, errors.Errorf("duplicate connector id %q (in %s)", c.ID, path)
			}
			result[c.ID] = c
		}
	}
	return result, nil
}

// loadBusinessGroups reads every *.toml file in dir, each describing
// one business routing group.
func loadBusinessGroups(ctx *stopper.Context, dir string, connectors map[string]connectorDef) ([]sink.BusinessGroup, error) {
	var groups []sink.BusinessGroup

	paths, err := globTOML(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		file, err := readRouteFile(path)
		if err != nil {
			return nil, err
		}
		ws, err := sink.NewWildSet(file.SinkGroup.Windows)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid windows pattern", path)
		}
		sinks, err := buildSinks(ctx, file.SinkGroup, connectors)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
		groups = append(groups, sink.BusinessGroup{
			Name:    file.SinkGroup.Name,
			Windows: ws,
			Sinks:   sinks,
		})
	}
	return groups, nil
}

// loadInfraGroup loads a single infra group file, returning nil if the
// file does not exist (both infra.d/default.toml and infra.d/error.toml
// are optional).
func loadInfraGroup(ctx *stopper.Context, path string, connectors map[string]connectorDef) (*sink.Group, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	file, err := readRouteFile(path)
	if err != nil {
		return nil, err
	}
	sinks, err := buildSinks(ctx, file.SinkGroup, connectors)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return &sink.Group{Name: file.SinkGroup.Name, Sinks: sinks}, nil
}

func buildSinks(ctx *stopper.Context, group routeGroup, connectors map[string]connectorDef) ([]sink.Sink, error) {
	sinks := make([]sink.Sink, 0, len(group.Sinks))
	for i, rs := range group.Sinks {
		def, ok := connectors[rs.Connect]
		if !ok {
			return nil, errors.Errorf("group %q: unknown connector %q", group.Name, rs.Connect)
		}
		name := rs.Name
		if name == "" {
			name = fmt.Sprintf("%s[%d]", group.Name, i)
		}
		s, err := buildSink(ctx, def, name, rs.Params)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func readRouteFile(path string) (*routeFile, error) {
	raw, err := readSubstituted(path)
	if err != nil {
		return nil, err
	}
	var file routeFile
	if _, err := toml.Decode(string(raw), &file); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &file, nil
}

// logDefaults parses defaults.toml, if present, purely to surface
// malformed files at load time; wf-reactor's dispatcher has no notion
// of per-alert tags, so the parsed body itself is discarded once
// validated.
func logDefaults(root string) error {
	path := filepath.Join(root, "defaults.toml")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	raw, err := readSubstituted(path)
	if err != nil {
		return err
	}
	var body defaultsBody
	if _, err := toml.Decode(string(raw), &body); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	log.WithField("tags", len(body.Tags)).Debug("loaded sink defaults")
	return nil
}

func readSubstituted(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return Substitute(raw)
}

func globTOML(dir string) ([]string, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, errors.Wrapf(err, "globbing %s", dir)
	}
	sort.Strings(matches)
	return matches, nil
}
