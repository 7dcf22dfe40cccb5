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
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// alertRow is an alert's fixed columns plus the full alert JSON object
// (FieldsJSON), as needed by the SQL sinks to build an upsert.
type alertRow struct {
	WfxID      string
	RuleName   string
	Score      float64
	EntityType string
	EntityID   string
	Origin     string
	FiredAt    time.Time
	Summary    string
	FieldsJSON []byte
}

// parseAlertRow decodes one alert JSON line (the wire format
// executor.Alert.MarshalJSON produces) into its fixed columns, keeping
// the full object as FieldsJSON for sinks that store yield fields
// alongside the fixed schema.
func parseAlertRow(data string) (alertRow, error) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return alertRow{}, errors.Wrap(err, "decoding alert JSON")
	}

	row := alertRow{FieldsJSON: []byte(data)}
	row.WfxID, _ = m["wfx_id"].(string)
	row.RuleName, _ = m["rule_name"].(string)
	if n, ok := m["score"].(float64); ok {
		row.Score = n
	}
	row.EntityType, _ = m["entity_type"].(string)
	row.EntityID, _ = m["entity_id"].(string)
	row.Origin, _ = m["origin"].(string)
	row.Summary, _ = m["summary"].(string)
	if s, ok := m["fired_at"].(string); ok {
		if t, err := time.Parse("2006-01-02T15:04:05.000Z", s); err == nil {
			row.FiredAt = t
		}
	}
	if row.WfxID == "" {
		return alertRow{}, errors.New("alert JSON missing wfx_id")
	}
	return row, nil
}
