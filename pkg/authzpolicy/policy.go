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

// Package authzpolicy implements the Authorization Policy (C9): three
// modes governing whether the caller's Authorization header is stripped
// or forwarded to the upstream API, each with its own logging posture.
package authzpolicy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Mode is one of the three caller-Authorization forwarding modes.
type Mode string

const (
	// Compliant never forwards the caller's Authorization header
	// upstream (the MCP-compliant default).
	Compliant Mode = "compliant"
	// PassthroughWarn forwards the header and logs a warning every time
	// it does so.
	PassthroughWarn Mode = "passthrough-warn"
	// PassthroughSilent forwards the header; its only per-request log
	// line is at trace level (below Debug).
	PassthroughSilent Mode = "passthrough-silent"
)

// ParseMode validates a CLI/config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Compliant, PassthroughWarn, PassthroughSilent:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid authorization mode: %q, valid values: compliant, passthrough-warn, passthrough-silent", s)
	}
}

// Policy applies a Mode's forwarding decision to outbound requests and
// narrates that decision through a structured logger, mirroring the
// distinction the reference implementation's SecurityObserver draws
// between per-request logging and startup logging.
type Policy struct {
	Mode   Mode
	Logger *slog.Logger
}

// New builds a Policy, defaulting to a discarding logger if none is given.
func New(mode Mode, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Policy{Mode: mode, Logger: logger}
}

// LogStartup announces the active mode once, at server startup.
func (p *Policy) LogStartup() {
	switch p.Mode {
	case Compliant:
		p.Logger.Info("authorization mode: compliant, headers will not be forwarded")
	case PassthroughWarn:
		p.Logger.Warn("authorization mode: passthrough-warn, Authorization headers WILL be forwarded to backend APIs")
	case PassthroughSilent:
		p.Logger.Info("authorization mode: passthrough-silent")
	}
}

// Apply decides whether to set, overwrite, or leave absent the
// Authorization header on an outbound *http.Request, and logs the
// decision per the active mode. callerAuthorization is the value the
// MCP client sent in; requiresAuth reflects whether the OpenAPI
// operation declares a security requirement; hasAuth is whether the
// request already carries an Authorization header (e.g. from a
// security-scheme-driven default).
func (p *Policy) Apply(req *http.Request, callerAuthorization, operationID string, requiresAuth, hasAuth bool) {
	switch p.Mode {
	case Compliant:
		if hasAuth {
			req.Header.Del("Authorization")
			p.Logger.Debug("Authorization header stripped (MCP-compliant mode)", "operation_id", operationID)
		} else {
			p.Logger.Log(context.Background(), levelTrace, "processing request", "operation_id", operationID, "has_auth", hasAuth, "requires_auth", requiresAuth)
		}
	case PassthroughWarn:
		if callerAuthorization != "" {
			req.Header.Set("Authorization", callerAuthorization)
			p.Logger.Warn("forwarding Authorization header (passthrough mode)", "operation_id", operationID)
		}
	case PassthroughSilent:
		if callerAuthorization != "" {
			req.Header.Set("Authorization", callerAuthorization)
		}
		p.Logger.Log(context.Background(), levelTrace, "processing request", "operation_id", operationID, "has_auth", hasAuth)
	}

	if requiresAuth && !hasAuth && callerAuthorization == "" {
		p.Logger.Warn("OpenAPI spec requires auth but no Authorization header present", "operation_id", operationID)
	}
}

// levelTrace is a slog level below Debug, used for the highest-volume,
// per-request diagnostic line (mirrors the reference implementation's
// trace! calls, which slog has no dedicated level for).
const levelTrace = slog.Level(-8)
