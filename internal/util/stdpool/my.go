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

// Package stdpool opens standardized, stopper-scoped database
// connection pools for the sink connectors: a pool's lifecycle is tied
// to the stopper.Context it was opened with, closed automatically on
// Stopping rather than requiring an explicit Close call from callers.
package stdpool

import (
	"database/sql"
	sqldriver "database/sql/driver"
	"time"

	_ "github.com/go-sql-driver/mysql" // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
)

// OpenMySQLAsSink opens a *sql.DB for the mysql sink, closing it when
// ctx stops. dsn is a standard go-sql-driver/mysql data source name
// (user:pass@tcp(host:port)/dbname?params).
func OpenMySQLAsSink(ctx *stopper.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening mysql sink pool")
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("could not close mysql sink pool")
		}
		return nil
	})

ping:
	if err := db.PingContext(ctx); err != nil {
		if isMySQLStartupError(err) {
			log.WithError(err).Info("waiting for mysql sink to become ready")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Second):
				goto ping
			}
		}
		return nil, errors.Wrap(err, "could not ping mysql sink")
	}
	return db, nil
}

func isMySQLStartupError(err error) bool {
	return errors.Is(err, sqldriver.ErrBadConn)
}
