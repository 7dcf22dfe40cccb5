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
	"os"
	"regexp"

	"github.com/pkg/errors"
)

// varPattern matches ${VAR} and ${VAR:default}. Names are restricted to
// the shell-identifier alphabet; the default, if present, runs to the
// closing brace and may be empty.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:([^}]*))?\}`)

// Substitute replaces every ${VAR} / ${VAR:default} occurrence in data
// with the value of the environment variable VAR, falling back to
// default when VAR is unset. A reference with no default and no set
// environment variable is an error, so a missing substitution fails
// loudly at config-load time rather than shipping a literal "${VAR}"
// into a rule file or connection string.
func Substitute(data []byte) ([]byte, error) {
	var firstErr error
	out := varPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := varPattern.FindSubmatch(match)
		name := string(groups[1])
		hasDefault := len(groups[2]) > 0
		def := string(groups[3])

		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if hasDefault {
			return []byte(def)
		}
		if firstErr == nil {
			firstErr = errors.Errorf("no value for ${%s} and no default given", name)
		}
		return match
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
