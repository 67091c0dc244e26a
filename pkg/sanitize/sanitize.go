// Copyright 2025 MakeMCP Contributors
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

// Package sanitize rewrites arbitrary OpenAPI identifiers into MCP-legal
// property names and records the rewrite so the original name can be
// recovered at call time.
package sanitize

import (
	"regexp"
	"strings"
)

const maxNameLength = 64

var illegalChar = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)
var runsOfUnderscore = regexp.MustCompile(`_{2,}`)

// Name rewrites raw into a string matching ^[A-Za-z0-9_.-]{1,64}$ that
// never starts with a digit, never ends in '_' and never contains a run of
// two or more '_'. A leading '-' or '.' is kept as is.
// Name is deterministic and idempotent: Name(Name(x)) == Name(x).
func Name(raw string) string {
	out := illegalChar.ReplaceAllString(raw, "_")
	out = runsOfUnderscore.ReplaceAllString(out, "_")
	out = strings.TrimRight(out, "_")
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
		out = strings.TrimRight(out, "_")
	}
	if out == "" {
		return "param"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "param_" + out
		if len(out) > maxNameLength {
			out = out[:maxNameLength]
		}
		out = strings.TrimRight(out, "_")
	}
	return out
}

// Changed reports whether Name would rewrite raw to something other than
// itself. Callers use this to decide whether a parameter_mappings entry
// (or an x-original-name annotation) is required.
func Changed(raw string) bool {
	return Name(raw) != raw
}

// Prefixed sanitizes raw after applying the header_/cookie_ prefix the
// spec requires for those two parameter locations, so that a header named
// "foo" and a path parameter named "foo" can never collide once sanitized.
func Prefixed(prefix, raw string) string {
	return Name(prefix + raw)
}
