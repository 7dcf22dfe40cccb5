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

package executor

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/wf-reactor/internal/value"
)

// Origin identifies what triggered an alert's emission.
type Origin string

// The four origins an alert may report.
const (
	OriginEvent        Origin = "event"
	OriginCloseTimeout Origin = "close:timeout"
	OriginCloseFlush   Origin = "close:flush"
	OriginCloseEOS     Origin = "close:eos"
)

// Alert is one fired rule occurrence, ready for JSON serialization and
// sink dispatch (spec §6's output format).
type Alert struct {
	WfxID      string                 `json:"wfx_id"`
	RuleName   string                 `json:"rule_name"`
	Score      float64                `json:"score"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Origin     Origin                 `json:"origin"`
	FiredAt    time.Time              `json:"fired_at"`
	Summary    string                 `json:"summary"`
	Fields     map[string]value.Value `json:"-"`

	// YieldTarget is the rule's `yield X(...)` target window name, used
	// as the Sink Dispatcher's routing key. Not part of the wire JSON
	// (spec §6 defines the alert's own output fields only).
	YieldTarget string `json:"-"`
}

// MarshalJSON emits the fixed fields plus every yield field flattened
// alongside them, matching the original engine's single flat JSON
// object per alert.
func (a Alert) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(a.Fields)+8)
	for k, v := range a.Fields {
		m[k] = jsonValue(v)
	}
	m["wfx_id"] = a.WfxID
	m["rule_name"] = a.RuleName
	m["score"] = a.Score
	m["entity_type"] = a.EntityType
	m["entity_id"] = a.EntityID
	m["origin"] = a.Origin
	m["fired_at"] = a.FiredAt.UTC().Format("2006-01-02T15:04:05.000Z")
	m["summary"] = a.Summary
	return json.Marshal(m)
}

func jsonValue(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNumber:
		n, _ := v.AsNumber()
		return n
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	default:
		return nil
	}
}

var alertSeq uint64

// encodeSpecialChars are the characters percent-encoded in alert id
// segments: a conservative set limited to the delimiters the id format
// itself uses, per spec §6.
const encodeSpecialChars = "%|#\x1f"

func percentEncode(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(encodeSpecialChars, c) >= 0 {
			sb.WriteByte('%')
			const hex = "0123456789ABCDEF"
			sb.WriteByte(hex[c>>4])
			sb.WriteByte(hex[c&0xf])
		} else {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func percentDecode(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi := hexVal(s[i+1])
			lo := hexVal(s[i+2])
			if hi >= 0 && lo >= 0 {
				sb.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}

// EncodeAlertID builds a wfx_id of the form `rule | keys | fired_at #
// seq`: rule, each key, and fired_at percent-encoded over {%,|,#,\x1f},
// keys joined by the unit separator, and seq a process-wide monotonic
// counter disambiguating same-millisecond alerts.
func EncodeAlertID(ruleName string, keys []value.Value, firedAt time.Time) string {
	encKeys := make([]string, len(keys))
	for i, k := range keys {
		encKeys[i] = percentEncode(k.String())
	}
	keysPart := strings.Join(encKeys, "\x1f")
	firedAtPart := percentEncode(firedAt.UTC().Format("2006-01-02T15:04:05.000Z"))
	seq := atomic.AddUint64(&alertSeq, 1)
	return percentEncode(ruleName) + "|" + keysPart + "|" + firedAtPart + "#" + itoa(seq)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// DecodeAlertID splits a wfx_id back into its rule name, key strings,
// and fired-at string — the inverse of EncodeAlertID, used by tests to
// verify the round-trip invariant from spec §8.
func DecodeAlertID(id string) (rule string, keys []string, firedAt string, ok bool) {
	firstBar := strings.IndexByte(id, '|')
	if firstBar < 0 {
		return "", nil, "", false
	}
	rest := id[firstBar+1:]
	secondBar := strings.IndexByte(rest, '|')
	if secondBar < 0 {
		return "", nil, "", false
	}
	keysPart := rest[:secondBar]
	tail := rest[secondBar+1:]
	hashIdx := strings.IndexByte(tail, '#')
	if hashIdx < 0 {
		return "", nil, "", false
	}
	rule = percentDecode(id[:firstBar])
	firedAt = percentDecode(tail[:hashIdx])
	if keysPart == "" {
		return rule, nil, firedAt, true
	}
	for _, k := range strings.Split(keysPart, "\x1f") {
		keys = append(keys, percentDecode(k))
	}
	return rule, keys, firedAt, true
}
