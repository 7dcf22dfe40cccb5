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
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/cockroachdb/wf-reactor/internal/util/metrics"
)

// MySQLSink upserts each alert into a target table over
// go-sql-driver/mysql, using MySQL's native INSERT ... ON DUPLICATE
// KEY UPDATE rather than Redshift's delete-then-insert dance.
type MySQLSink struct {
	name    string
	table   string
	db      *sql.DB
	metrics *metrics.SinkMetrics
}

// NewMySQLSink constructs a MySQLSink writing into table over db.
func NewMySQLSink(name, table string, db *sql.DB) *MySQLSink {
	return &MySQLSink{name: name, table: table, db: db, metrics: metrics.ForSink(name)}
}

// SendStr parses data as an alert JSON line and upserts it.
func (s *MySQLSink) SendStr(ctx context.Context, data string) error {
	start := time.Now()
	row, err := parseAlertRow(data)
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "parsing alert for mysql sink %q", s.name)
	}

	stmt := fmt.Sprintf(`
INSERT INTO %s (wfx_id, rule_name, score, entity_type, entity_id, origin, fired_at, summary, fields)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  rule_name = VALUES(rule_name), score = VALUES(score),
  entity_type = VALUES(entity_type), entity_id = VALUES(entity_id),
  origin = VALUES(origin), fired_at = VALUES(fired_at),
  summary = VALUES(summary), fields = VALUES(fields)`, s.table)

	_, err = s.db.ExecContext(ctx, stmt, row.WfxID, row.RuleName, row.Score, row.EntityType,
		row.EntityID, row.Origin, row.FiredAt, row.Summary, string(row.FieldsJSON))
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "upserting alert into mysql sink %q", s.name)
	}
	return nil
}

// Stop closes the underlying connection pool.
func (s *MySQLSink) Stop(_ context.Context) error {
	return s.db.Close()
}
