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

// RedshiftSink upserts each alert into a target table over lib/pq.
// Redshift has no single-statement UPSERT, so this follows the
// conventional delete-then-insert pattern inside one transaction,
// keyed by wfx_id — the same shape the teacher's own redshift
// connector (sink.go/resolved_table.go) used for CDC mutations,
// retargeted at the fixed alert schema.
type RedshiftSink struct {
	name    string
	table   string
	db      *sql.DB
	metrics *metrics.SinkMetrics
}

// NewRedshiftSink constructs a RedshiftSink writing into table over db.
func NewRedshiftSink(name, table string, db *sql.DB) *RedshiftSink {
	return &RedshiftSink{name: name, table: table, db: db, metrics: metrics.ForSink(name)}
}

// SendStr parses data as an alert JSON line and upserts it via a
// delete-then-insert transaction.
func (s *RedshiftSink) SendStr(ctx context.Context, data string) error {
	start := time.Now()
	row, err := parseAlertRow(data)
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "parsing alert for redshift sink %q", s.name)
	}

	err = s.upsert(ctx, row)
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SendErrors.Inc()
		return errors.Wrapf(err, "upserting alert into redshift sink %q", s.name)
	}
	return nil
}

func (s *RedshiftSink) upsert(ctx context.Context, row alertRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE wfx_id = $1", s.table), row.WfxID); err != nil {
		return err
	}
	insert := fmt.Sprintf(`
INSERT INTO %s (wfx_id, rule_name, score, entity_type, entity_id, origin, fired_at, summary, fields)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.table)
	if _, err := tx.ExecContext(ctx, insert, row.WfxID, row.RuleName, row.Score, row.EntityType,
		row.EntityID, row.Origin, row.FiredAt, row.Summary, string(row.FieldsJSON)); err != nil {
		return err
	}
	return tx.Commit()
}

// Stop closes the underlying connection pool.
func (s *RedshiftSink) Stop(_ context.Context) error {
	return s.db.Close()
}
