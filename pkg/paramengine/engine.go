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

// Package paramengine implements the Parameter Engine (C5): it validates
// a call's raw arguments against a tool's input schema, collecting every
// violation rather than stopping at the first, then partitions accepted
// arguments into their wire locations and restores original OpenAPI names.
package paramengine

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"time"

	"github.com/xrash/smetrics"

	"github.com/oas2mcp/makemcp/pkg/core"
	"github.com/oas2mcp/makemcp/pkg/mcperrors"
)

const suggestionThreshold = 0.7

var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// RequestConfig carries the per-call knobs recovered from the reserved
// timeout_seconds argument.
type RequestConfig struct {
	TimeoutSeconds int
}

const (
	defaultTimeoutSeconds = 30
	minTimeoutSeconds     = 1
	maxTimeoutSeconds     = 300
)

// ExtractedParameters is the request-scope result of a successful
// Extract call: arguments partitioned by wire location, with original
// OpenAPI names restored.
type ExtractedParameters struct {
	Path    map[string]any
	Header  map[string]any
	Cookie  map[string]any
	Body    map[string]any
	Query   map[string]QueryValue
	Config  RequestConfig
}

// QueryValue is one query argument's value plus its explode flag.
type QueryValue struct {
	Value   any
	Explode bool
}

// Extract validates args against entry's input schema (collecting every
// violation) and, if valid, partitions the accepted arguments into their
// wire locations. A non-nil error is always *mcperrors.InvalidParameters
// or *mcperrors.RequestConstructionError.
func Extract(entry *core.ToolCatalogEntry, args map[string]any) (*ExtractedParameters, error) {
	if args == nil {
		args = map[string]any{}
	}

	violations := Validate(entry, args)
	if len(violations) > 0 {
		return nil, &mcperrors.InvalidParameters{Violations: violations}
	}

	out := &ExtractedParameters{
		Path:   map[string]any{},
		Header: map[string]any{},
		Cookie: map[string]any{},
		Body:   map[string]any{},
		Query:  map[string]QueryValue{},
		Config: RequestConfig{TimeoutSeconds: defaultTimeoutSeconds},
	}

	for name, value := range args {
		if name == "timeout_seconds" {
			if n, ok := asInt(value); ok {
				out.Config.TimeoutSeconds = clamp(n, minTimeoutSeconds, maxTimeoutSeconds)
			}
			continue
		}
		mapping, ok := entry.ParameterMappings[name]
		if !ok {
			// No wire mapping: the argument is not forwarded. Validate reports
			// UnknownParameter only for names outside the input schema, so an
			// in-schema property without a mapping is dropped without error.
			continue
		}
		original := restoreOriginalName(mapping)
		switch mapping.Location {
		case core.LocationPath:
			out.Path[original] = value
		case core.LocationHeader:
			out.Header[original] = value
		case core.LocationCookie:
			out.Cookie[original] = value
		case core.LocationQuery:
			out.Query[original] = QueryValue{Value: value, Explode: mapping.Explode}
		case core.LocationBody:
			out.Body[original] = value
		}
	}

	return out, nil
}

func restoreOriginalName(mapping core.ParameterMapping) string {
	return mapping.OriginalName
}

// Validate checks args against entry.Tool.InputSchema, returning every
// violation found (never short-circuiting on the first).
// entry.ParameterMappings is not consulted.
func Validate(entry *core.ToolCatalogEntry, args map[string]any) []mcperrors.Violation {
	var violations []mcperrors.Violation

	properties := entry.Tool.InputSchema.Properties
	required := entry.Tool.InputSchema.Required

	validNames := make([]string, 0, len(properties)+1)
	for name := range properties {
		validNames = append(validNames, name)
	}
	validNames = append(validNames, "timeout_seconds")
	sort.Strings(validNames)

	for name := range args {
		if name == "timeout_seconds" {
			continue
		}
		if _, ok := properties[name]; !ok {
			violations = append(violations, mcperrors.Violation{
				Kind:        mcperrors.ViolationUnknownParameter,
				Name:        name,
				Suggestions: suggest(name, validNames),
				Valid:       validNames,
			})
		}
	}

	for _, name := range required {
		value, present := args[name]
		if !present {
			violations = append(violations, mcperrors.Violation{
				Kind:         mcperrors.ViolationMissingRequired,
				Parameter:    name,
				ExpectedType: typeOf(properties[name]),
				Description:  descriptionOf(properties[name]),
			})
			continue
		}
		if value == nil {
			violations = append(violations, nullViolation(name, true, properties[name]))
		}
	}

	for name, value := range args {
		if name == "timeout_seconds" {
			continue
		}
		propSchema, ok := properties[name]
		if !ok {
			continue
		}
		if value == nil {
			if !isRequired(required, name) {
				violations = append(violations, nullViolation(name, false, propSchema))
			}
			continue
		}
		violations = append(violations, constraintViolations(name, value, propSchema)...)
	}

	return violations
}

func isRequired(required []string, name string) bool {
	for _, r := range required {
		if r == name {
			return true
		}
	}
	return false
}

func nullViolation(name string, required bool, propSchema any) mcperrors.Violation {
	msg := "null not allowed, omit if not needed"
	if required {
		msg = "is required and must be non-null"
	}
	return mcperrors.Violation{
		Kind:         mcperrors.ViolationConstraint,
		Parameter:    name,
		Message:      msg,
		FieldPath:    name,
		ExpectedType: typeOf(propSchema),
	}
}

func suggest(name string, candidates []string) []string {
	type scored struct {
		name  string
		score float64
	}
	var scoredCandidates []scored
	for _, c := range candidates {
		s := smetrics.JaroWinkler(name, c, 0.7, 4)
		if s >= suggestionThreshold {
			scoredCandidates = append(scoredCandidates, scored{c, s})
		}
	}
	sort.Slice(scoredCandidates, func(i, j int) bool { return scoredCandidates[i].score > scoredCandidates[j].score })
	out := make([]string, 0, len(scoredCandidates))
	for _, s := range scoredCandidates {
		out = append(out, s.name)
	}
	return out
}

func typeOf(propSchema any) string {
	m, ok := propSchema.(map[string]any)
	if !ok {
		return ""
	}
	if t, ok := m["type"].(string); ok {
		return t
	}
	return ""
}

func descriptionOf(propSchema any) string {
	m, ok := propSchema.(map[string]any)
	if !ok {
		return ""
	}
	if d, ok := m["description"].(string); ok {
		return d
	}
	return ""
}

// constraintViolations checks value against every structural constraint
// present on propSchema, returning one Violation per failed constraint
// (so a single argument can contribute more than one violation).
func constraintViolations(name string, value any, propSchema any) []mcperrors.Violation {
	m, ok := propSchema.(map[string]any)
	if !ok {
		return nil
	}
	var out []mcperrors.Violation
	add := func(message string, constraints map[string]any) {
		out = append(out, mcperrors.Violation{
			Kind:         mcperrors.ViolationConstraint,
			Parameter:    name,
			Message:      message,
			FieldPath:    name,
			Actual:       value,
			ExpectedType: typeOf(propSchema),
			Constraints:  constraints,
		})
	}

	if enum, ok := m["enum"].([]any); ok {
		if !containsValue(enum, value) {
			add(fmt.Sprintf("%v is not one of the allowed values", value), map[string]any{"enum": enum})
		}
	}
	if c, ok := m["const"]; ok {
		if fmt.Sprint(c) != fmt.Sprint(value) {
			add(fmt.Sprintf("%v does not equal the required const value %v", value, c), map[string]any{"const": c})
		}
	}
	if num, ok := asFloat(value); ok {
		if min, ok := asFloat(m["minimum"]); ok && num < min {
			add(fmt.Sprintf("%v is less than minimum %v", value, min), map[string]any{"minimum": min})
		}
		if max, ok := asFloat(m["maximum"]); ok && num > max {
			add(fmt.Sprintf("%v is greater than maximum %v", value, max), map[string]any{"maximum": max})
		}
		if mult, ok := asFloat(m["multipleOf"]); ok && mult != 0 {
			if remainder := num / mult; remainder != float64(int64(remainder)) {
				add(fmt.Sprintf("%v is not a multiple of %v", value, mult), map[string]any{"multipleOf": mult})
			}
		}
	}
	if s, ok := value.(string); ok {
		if minLen, ok := asInt(m["minLength"]); ok && len(s) < minLen {
			add(fmt.Sprintf("length %d is less than minLength %d", len(s), minLen), map[string]any{"minLength": minLen})
		}
		if maxLen, ok := asInt(m["maxLength"]); ok && len(s) > maxLen {
			add(fmt.Sprintf("length %d is greater than maxLength %d", len(s), maxLen), map[string]any{"maxLength": maxLen})
		}
		if pattern, ok := m["pattern"].(string); ok && pattern != "" {
			if re, err := regexp.Compile(pattern); err == nil && !re.MatchString(s) {
				add(fmt.Sprintf("%q does not match pattern %q", s, pattern), map[string]any{"pattern": pattern})
			}
		}
		if format, ok := m["format"].(string); ok && format != "" {
			if msg, ok := formatViolation(format, s); ok {
				add(msg, map[string]any{"format": format})
			}
		}
	}
	if arr, ok := value.([]any); ok {
		if minItems, ok := asInt(m["minItems"]); ok && len(arr) < minItems {
			add(fmt.Sprintf("has %d items, less than minItems %d", len(arr), minItems), map[string]any{"minItems": minItems})
		}
		if maxItems, ok := asInt(m["maxItems"]); ok && len(arr) > maxItems {
			add(fmt.Sprintf("has %d items, more than maxItems %d", len(arr), maxItems), map[string]any{"maxItems": maxItems})
		}
		if unique, ok := m["uniqueItems"].(bool); ok && unique {
			if dup, hasDup := firstDuplicate(arr); hasDup {
				add(fmt.Sprintf("items must be unique, but %v appears more than once", dup), map[string]any{"uniqueItems": true})
			}
		}
	}
	if obj, ok := value.(map[string]any); ok {
		if minProps, ok := asInt(m["minProperties"]); ok && len(obj) < minProps {
			add(fmt.Sprintf("has %d properties, less than minProperties %d", len(obj), minProps), map[string]any{"minProperties": minProps})
		}
		if maxProps, ok := asInt(m["maxProperties"]); ok && len(obj) > maxProps {
			add(fmt.Sprintf("has %d properties, more than maxProperties %d", len(obj), maxProps), map[string]any{"maxProperties": maxProps})
		}
	}
	return out
}

// formatViolation checks the handful of string formats the translator
// can emit (from OpenAPI's "format" keyword) that are cheap and
// unambiguous to validate without a schema library. Unknown formats are
// never flagged, matching JSON Schema's "format is an annotation unless
// the implementation chooses to assert it" stance.
func formatViolation(format, s string) (string, bool) {
	switch format {
	case "date":
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return fmt.Sprintf("%q is not a valid date (YYYY-MM-DD)", s), true
		}
	case "date-time":
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Sprintf("%q is not a valid RFC 3339 date-time", s), true
		}
	case "email":
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Sprintf("%q is not a valid email address", s), true
		}
	case "uuid":
		if !uuidPattern.MatchString(s) {
			return fmt.Sprintf("%q is not a valid UUID", s), true
		}
	}
	return "", false
}

func firstDuplicate(items []any) (any, bool) {
	seen := map[string]bool{}
	for _, item := range items {
		key := fmt.Sprint(item)
		if seen[key] {
			return item, true
		}
		seen[key] = true
	}
	return nil, false
}

func containsValue(haystack []any, needle any) bool {
	for _, h := range haystack {
		if fmt.Sprint(h) == fmt.Sprint(needle) {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
