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
	"time"

	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/sink"
	"github.com/cockroachdb/wf-reactor/internal/util/stdpool"
	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
)

// buildSink constructs a sink.Sink from a connector definition and the
// per-route-sink parameter overrides, dispatching on the connector's
// "type" the way the route file's `connect` reference names a
// connector by id. Overrides take precedence over the connector's own
// defaults.
func buildSink(ctx *stopper.Context, def connectorDef, instanceName string, overrides map[string]interface{}) (sink.Sink, error) {
	params := mergeParams(def.Params, overrides)

	switch def.Kind {
	case "file":
		path, ok := paramString(params, "path")
		if !ok {
			return nil, errors.Errorf("connector %q: file sink requires a \"path\" param", def.ID)
		}
		return sink.NewFileSink(instanceName, path)

	case "stdout":
		return sink.NewStdoutSink(instanceName), nil

	case "webhook":
		url, ok := paramString(params, "url")
		if !ok {
			return nil, errors.Errorf("connector %q: webhook sink requires a \"url\" param", def.ID)
		}
		timeout := paramDuration(params, "timeout", 5*time.Second)
		return sink.NewWebhookSink(instanceName, url, timeout), nil

	case "postgres":
		dsn, table, err := dsnAndTable(def, params)
		if err != nil {
			return nil, err
		}
		pool, err := stdpool.OpenPostgresAsSink(ctx, dsn)
		if err != nil {
			return nil, errors.Wrapf(err, "connector %q", def.ID)
		}
		return sink.NewPostgresSink(instanceName, table, pool), nil

	case "redshift":
		dsn, table, err := dsnAndTable(def, params)
		if err != nil {
			return nil, err
		}
		db, err := stdpool.OpenRedshiftAsSink(ctx, dsn)
		if err != nil {
			return nil, errors.Wrapf(err, "connector %q", def.ID)
		}
		return sink.NewRedshiftSink(instanceName, table, db), nil

	case "mysql":
		dsn, table, err := dsnAndTable(def, params)
		if err != nil {
			return nil, err
		}
		db, err := stdpool.OpenMySQLAsSink(ctx, dsn)
		if err != nil {
			return nil, errors.Wrapf(err, "connector %q", def.ID)
		}
		return sink.NewMySQLSink(instanceName, table, db), nil

	default:
		return nil, errors.Errorf("connector %q: unknown sink type %q", def.ID, def.Kind)
	}
}

func dsnAndTable(def connectorDef, params map[string]interface{}) (dsn, table string, err error) {
	dsn, ok := paramString(params, "dsn")
	if !ok {
		return "", "", errors.Errorf("connector %q: requires a \"dsn\" param", def.ID)
	}
	table, ok = paramString(params, "table")
	if !ok {
		return "", "", errors.Errorf("connector %q: requires a \"table\" param", def.ID)
	}
	return dsn, table, nil
}

// mergeParams overlays overrides onto a connector's default params,
// without mutating either input.
func mergeParams(defaults, overrides map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func paramString(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramDuration(params map[string]interface{}, key string, def time.Duration) time.Duration {
	s, ok := paramString(params, key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
