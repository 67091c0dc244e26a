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

// Package mcperrors defines the typed tool-call error taxonomy and its
// mapping onto MCP JSON-RPC error codes.
package mcperrors

import "fmt"

// MCP JSON-RPC error codes used by this bridge.
const (
	CodeInvalidParams  = -32602
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeServerError    = -32000
)

// NetworkCategory classifies a wire-level failure that occurred before (or
// while) reading a response, mirroring the HTTP client's own predicates.
type NetworkCategory string

const (
	NetworkTimeout NetworkCategory = "Timeout"
	NetworkConnect NetworkCategory = "Connect"
	NetworkRequest NetworkCategory = "Request"
	NetworkBody    NetworkCategory = "Body"
	NetworkDecode  NetworkCategory = "Decode"
	NetworkOther   NetworkCategory = "Other"
)

// ToolCallError is implemented by every error this bridge raises from a
// call_tool dispatch; MCPCode reports the JSON-RPC code its MCP error
// envelope should carry.
type ToolCallError interface {
	error
	MCPCode() int
}

// ToolNotFound is raised when a call names a tool absent from (or hidden
// by the access filter from) the catalog. Suggestions are computed only
// over tools visible under the active filter, per the never-leak policy.
type ToolNotFound struct {
	ToolName    string
	Suggestions []string
}

func (e *ToolNotFound) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("tool not found: %q", e.ToolName)
	}
	return fmt.Sprintf("tool not found: %q (did you mean one of: %v?)", e.ToolName, e.Suggestions)
}

func (e *ToolNotFound) MCPCode() int { return CodeMethodNotFound }

// ViolationKind names which kind of argument-validation failure a
// Violation describes.
type ViolationKind string

const (
	ViolationUnknownParameter    ViolationKind = "UnknownParameter"
	ViolationMissingRequired     ViolationKind = "MissingRequired"
	ViolationConstraint          ViolationKind = "ConstraintViolation"
	ViolationRequestConstruction ViolationKind = "RequestConstruction"
)

// Violation describes a single argument-validation failure. All fields
// that apply to the Kind are populated; validation never short-circuits,
// so a single call can surface many Violations in one InvalidParameters error.
type Violation struct {
	Kind ViolationKind `json:"kind"`

	// UnknownParameter
	Name        string   `json:"name,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Valid       []string `json:"valid,omitempty"`

	// MissingRequired
	Parameter    string `json:"parameter,omitempty"`
	ExpectedType string `json:"expected_type,omitempty"`
	Description  string `json:"description,omitempty"`

	// ConstraintViolation
	Message     string         `json:"message,omitempty"`
	FieldPath   string         `json:"field_path,omitempty"`
	Actual      any            `json:"actual,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`

	// RequestConstruction
	Reason string `json:"reason,omitempty"`
}

// InvalidParameters wraps every Violation collected while validating one
// call's arguments against a tool's input schema.
type InvalidParameters struct {
	Violations []Violation
}

func (e *InvalidParameters) Error() string {
	return fmt.Sprintf("invalid parameters: %d violation(s)", len(e.Violations))
}

func (e *InvalidParameters) MCPCode() int { return CodeInvalidParams }

// RequestConstructionError reports a call whose arguments could not be
// shaped into a request at all (non-object args, etc).
type RequestConstructionError struct {
	Reason string
}

func (e *RequestConstructionError) Error() string {
	return fmt.Sprintf("could not construct request: %s", e.Reason)
}

func (e *RequestConstructionError) MCPCode() int { return CodeInvalidParams }

// NetworkError reports a wire-level failure (connect refused, timeout,
// body read failure, ...) that prevented a response from being obtained
// at all. A non-2xx HTTP response is NOT a NetworkError: it is a
// successful dispatch whose result carries is_success=false.
type NetworkError struct {
	Message  string
	Category NetworkCategory
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *NetworkError) MCPCode() int { return CodeServerError }

// HTTPError wraps a non-2xx upstream response for callers that choose to
// surface it as a tool-call failure rather than a successful is_success=false result.
type HTTPError struct {
	Status  int
	Message string
	Details string
}

func (e *HTTPError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (e *HTTPError) MCPCode() int { return CodeServerError }

// ResponseParsingError reports a response body that could not be decoded
// into the shape the tool's output schema expected.
type ResponseParsingError struct {
	Reason      string
	RawResponse string
}

func (e *ResponseParsingError) Error() string {
	return fmt.Sprintf("response parsing error: %s", e.Reason)
}

func (e *ResponseParsingError) MCPCode() int { return CodeServerError }

// CircularReference is raised by the reference resolver when the same
// $ref is entered twice while resolving one schema path.
type CircularReference struct {
	Ref string
}

func (e *CircularReference) Error() string {
	return fmt.Sprintf("circular reference: %s", e.Ref)
}

func (e *CircularReference) MCPCode() int { return CodeParseError }

// UnsupportedReference is raised for any $ref that is not a local
// #/components/schemas/<name> pointer; resolving external documents is
// explicitly out of scope.
type UnsupportedReference struct {
	Ref string
}

func (e *UnsupportedReference) Error() string {
	return fmt.Sprintf("unsupported reference (only local #/components/schemas/... refs are resolved): %s", e.Ref)
}

func (e *UnsupportedReference) MCPCode() int { return CodeParseError }
