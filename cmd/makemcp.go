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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	mcpgoserver "github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"

	"github.com/oas2mcp/makemcp/pkg/auth"
	"github.com/oas2mcp/makemcp/pkg/authzpolicy"
	"github.com/oas2mcp/makemcp/pkg/core"
	"github.com/oas2mcp/makemcp/pkg/httpexec"
	"github.com/oas2mcp/makemcp/pkg/mcpserver"
	"github.com/oas2mcp/makemcp/pkg/openapi"
	"github.com/oas2mcp/makemcp/pkg/registry"
	"github.com/oas2mcp/makemcp/pkg/transform"
)

// version is set by build flags during release.
var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "makemcp",
		Usage:   "Bridge an OpenAPI document into a Model Context Protocol server.",
		Version: version,
		Flags:   flags(),
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "spec"},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "base-url", Required: true, Usage: "Base URL every compiled tool's requests are sent against."},
		&cli.StringFlag{Name: "transport", Value: "stdio", Usage: "MCP transport: stdio or http."},
		&cli.StringFlag{Name: "port", Value: "8080", Usage: "Port for the http transport."},
		&cli.StringFlag{Name: "bind-address", Value: "127.0.0.1", Usage: "Bind address for the http transport."},
		&cli.StringSliceFlag{Name: "header", Usage: "Default header forwarded with every outbound request, as Name:Value (repeatable)."},
		&cli.StringSliceFlag{Name: "tags", Usage: "Only compile operations carrying one of these OpenAPI tags."},
		&cli.StringSliceFlag{Name: "methods", Usage: "Only compile operations using one of these HTTP methods."},
		&cli.StringSliceFlag{Name: "operationids-include", Usage: "Only compile operations with one of these operationIds."},
		&cli.StringSliceFlag{Name: "operationids-exclude", Usage: "Never compile operations with one of these operationIds."},
		&cli.StringFlag{Name: "authorization-mode", Value: string(authzpolicy.Compliant), Sources: cli.EnvVars("RMCP_AUTHORIZATION_MODE"), Usage: "compliant, passthrough-warn, or passthrough-silent."},
		&cli.BoolFlag{Name: "skip-tool-descriptions", Usage: "Omit generated tool descriptions."},
		&cli.BoolFlag{Name: "skip-parameter-descriptions", Usage: "Omit generated parameter descriptions."},
		&cli.BoolFlag{Name: "stateful", Usage: "Reserved for a stateful HTTP session mode; currently a no-op flag kept for CLI compatibility."},
		&cli.BoolFlag{Name: "require-bearer-auth", Usage: "Require a valid inbound Bearer token on the MCP http endpoint."},
		&cli.StringFlag{Name: "jwks-uri", Usage: "JWKS endpoint used to validate inbound Bearer tokens."},
		&cli.StringFlag{Name: "bearer-public-key", Usage: "Static RSA public key (PEM) used to validate inbound Bearer tokens."},
		&cli.BoolFlag{Name: "config-only", Usage: "Compile the catalog, write it to stdout as JSON, and exit without starting a server."},
		&cli.BoolFlag{Name: "strict-validate", Usage: "Fail loading when the OpenAPI model builder reports any error (such as an unresolvable $ref), instead of logging a warning and compiling anyway."},
		&cli.StringFlag{Name: "log-level", Value: "info", Sources: cli.EnvVars("RMCP_OPENAPI_LOG"), Usage: "debug, info, warn, or error."},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.String("log-level"))

	specLocation := cmd.StringArg("spec")
	if specLocation == "" {
		return fmt.Errorf("a spec argument (path or URL) is required")
	}

	includeIDs := cmd.StringSlice("operationids-include")
	excludeIDs := cmd.StringSlice("operationids-exclude")
	if len(includeIDs) > 0 && len(excludeIDs) > 0 {
		return fmt.Errorf("--operationids-include and --operationids-exclude are mutually exclusive")
	}

	mode, err := authzpolicy.ParseMode(cmd.String("authorization-mode"))
	if err != nil {
		return err
	}

	doc, err := openapi.Load(logger, specLocation, cmd.Bool("strict-validate"))
	if err != nil {
		return fmt.Errorf("loading spec: %w", err)
	}

	contentTypes := openapi.NewContentTypeRegistry()
	entries, skipped, err := openapi.Compile(doc, openapi.CompileOptions{
		TagFilter:                 cmd.StringSlice("tags"),
		MethodFilter:              cmd.StringSlice("methods"),
		OperationIDsInclude:       includeIDs,
		OperationIDsExclude:       excludeIDs,
		SkipToolDescriptions:      cmd.Bool("skip-tool-descriptions"),
		SkipParameterDescriptions: cmd.Bool("skip-parameter-descriptions"),
	}, contentTypes)
	if err != nil {
		return fmt.Errorf("compiling catalog: %w", err)
	}
	for _, reason := range skipped {
		logger.Warn("skipped operation during catalog compilation", "reason", reason)
	}
	logger.Info("compiled tool catalog", "tool_count", len(entries))

	if cmd.Bool("config-only") {
		return emitCatalogSnapshot(entries)
	}

	defaultHeaders, err := parseHeaders(cmd.StringSlice("header"))
	if err != nil {
		return err
	}

	policy := authzpolicy.New(mode, logger)
	policy.LogStartup()

	client := httpexec.New(cmd.String("base-url"), defaultHeaders, policy)
	reg := registry.New(entries, client, contentTypes, transform.NewRegistry(), nil)
	mcpServer := mcpserver.Build("makemcp", version, reg, logger)

	if cmd.String("transport") != "http" {
		return mcpserver.Start(mcpServer, "stdio", "", &mcpserver.ProductionServerFactory{})
	}

	addr := fmt.Sprintf("%s:%s", cmd.String("bind-address"), cmd.String("port"))
	if !cmd.Bool("require-bearer-auth") {
		return mcpserver.Start(mcpServer, "http", addr, &mcpserver.ProductionServerFactory{})
	}
	return serveWithBearerAuth(mcpServer, addr, cmd, logger)
}

// serveWithBearerAuth wraps the streamable-HTTP MCP transport with pkg/auth's
// Bearer token middleware, bypassing mcpserver.Start's ProductionServerFactory
// so the middleware sits in front of every request.
func serveWithBearerAuth(mcpServer *mcpgoserver.MCPServer, addr string, cmd *cli.Command, logger *slog.Logger) error {
	authConfig := &auth.BearerAuthConfig{
		Enabled:   true,
		JWKSUri:   cmd.String("jwks-uri"),
		PublicKey: cmd.String("bearer-public-key"),
		Required:  true,
	}
	if err := authConfig.Validate(); err != nil {
		return fmt.Errorf("bearer auth configuration: %w", err)
	}

	middleware, err := auth.NewBearerAuthMiddleware(authConfig)
	if err != nil {
		return fmt.Errorf("building bearer auth middleware: %w", err)
	}
	defer middleware.Close()

	logger.Info("bearer authentication enabled", "key_source", authConfig.GetKeySource())

	handler := middleware.Middleware(mcpserver.HTTPHandler(mcpServer))
	return http.ListenAndServe(addr, handler)
}

func emitCatalogSnapshot(entries []*core.ToolCatalogEntry) error {
	snapshot := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		snapshot = append(snapshot, map[string]any{
			"name":   e.Tool.Name,
			"method": e.Method,
			"path":   e.Path,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

func parseHeaders(raw []string) (map[string]string, error) {
	out := map[string]string{}
	for _, h := range raw {
		idx := strings.IndexByte(h, ':')
		if idx < 0 {
			return nil, fmt.Errorf("invalid --header %q, expected Name:Value", h)
		}
		out[strings.TrimSpace(h[:idx])] = strings.TrimSpace(h[idx+1:])
	}
	return out, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
