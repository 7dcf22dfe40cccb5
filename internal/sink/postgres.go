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

package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
)

// PostgresSink upserts each alert into a target table keyed by wfx_id,
// the same single-statement UPSERT idiom the teacher uses for its
// target pools, adapted from a CDC mutation schema to the fixed alert
// schema.
type PostgresSink struct {
	name    string
	table   string
	pool    *pgxpool.Pool
	metrics *metrics.SinkMetrics
}

// NewPostgresSink constructs a PostgresSink writing into table over pool.
func NewPostgresSink(name, table string, pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{name: name, table: table, pool: pool, metrics: metrics.ForSink(name)}
}

// SendStr parses data as an alert JSON line and upserts it.
func (s *PostgresSink) SendStr(ctx context.Context, data string) error {
	start := time.Now()
	row, err := parseAlertRow(data)
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "parsing alert for postgres sink %q", s.name)
	}

	stmt := fmt.Sprintf(`
INSERT INTO %s (wfx_id, rule_name, score, entity_type, entity_id, origin, fired_at, summary, fields)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (wfx_id) DO UPDATE SET
  rule_name = EXCLUDED.rule_name, score = EXCLUDED.score,
  entity_type = EXCLUDED.entity_type, entity_id = EXCLUDED.entity_id,
  origin = EXCLUDED.origin, fired_at = EXCLUDED.fired_at,
  summary = EXCLUDED.summary, fields = EXCLUDED.fields`, s.table)

	_, err = s.pool.Exec(ctx, stmt, row.WfxID, row.RuleName, row.Score, row.EntityType,
		row.EntityID, row.Origin, row.FiredAt, row.Summary, row.FieldsJSON)
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "upserting alert into postgres sink %q", s.name)
	}
	return nil
}

// Stop closes the connection pool.
func (s *PostgresSink) Stop(_ context.Context) error {
	s.pool.Close()
	return nil
}
