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

package stdpool

import (
	"database/sql"

	_ "github.com/lib/pq" // register driver; Redshift speaks the Postgres wire protocol
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/wf-reactor/internal/util/stopper"
)

// OpenRedshiftAsSink opens a *sql.DB against a Redshift cluster for
// the redshift sink, via lib/pq (the conventional driver for Redshift's
// Postgres-wire-protocol endpoint), closing it when ctx stops.
func OpenRedshiftAsSink(ctx *stopper.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, errors.Wrap(err, "opening redshift sink pool")
	}

	ctx.Go(func() error {
		<-ctx.Stopping()
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("could not close redshift sink pool")
		}
		return nil
	})

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "could not ping redshift sink")
	}
	return db, nil
}
