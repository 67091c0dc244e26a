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

// Package mcpserver adapts a registry.Registry (C7) onto mark3labs/mcp-go's
// server.MCPServer, the Model Context Protocol Transport Adapter (A4). It
// is the one package under pkg/ that imports mcp-go types (cmd/makemcp.go
// also uses mcp-go's server package for transport wiring): every other
// package works in terms of core.McpTool and registry.CallResult so it
// stays usable under any future transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oas2mcp/makemcp/pkg/auth"
	"github.com/oas2mcp/makemcp/pkg/core"
	"github.com/oas2mcp/makemcp/pkg/mcperrors"
	"github.com/oas2mcp/makemcp/pkg/registry"
)

// ServerFactory abstracts server creation and lifecycle, so a caller can
// substitute a test double for either transport.
type ServerFactory interface {
	CreateHTTPServer(mcpServer *server.MCPServer) HTTPServer
	CreateStdioServer(mcpServer *server.MCPServer) StdioServer
}

// HTTPServer abstracts the streamable-HTTP MCP transport.
type HTTPServer interface {
	Start(addr string) error
	Stop() error
}

// StdioServer abstracts the stdio MCP transport.
type StdioServer interface {
	Serve() error
	Stop() error
}

// ProductionServerFactory builds real mcp-go transports.
type ProductionServerFactory struct{}

func (f *ProductionServerFactory) CreateHTTPServer(mcpServer *server.MCPServer) HTTPServer {
	return &productionHTTPServer{server: server.NewStreamableHTTPServer(mcpServer)}
}

func (f *ProductionServerFactory) CreateStdioServer(mcpServer *server.MCPServer) StdioServer {
	return &productionStdioServer{server: mcpServer}
}

type productionHTTPServer struct{ server *server.StreamableHTTPServer }

func (s *productionHTTPServer) Start(addr string) error { return s.server.Start(addr) }
func (s *productionHTTPServer) Stop() error {
	s.server.Shutdown(context.Background())
	return nil
}

type productionStdioServer struct{ server *server.MCPServer }

func (s *productionStdioServer) Serve() error { return server.ServeStdio(s.server) }
func (s *productionStdioServer) Stop() error  { return nil }

// Build constructs an mcp-go MCPServer whose list_tools and call_tool
// handlers are both backed by reg.
func Build(name, version string, reg *registry.Registry, logger *slog.Logger) *server.MCPServer {
	mcpServer := server.NewMCPServer(name, version, server.WithToolCapabilities(true))

	for _, tool := range reg.ListTools() {
		toolName := tool.Name
		mcpServer.AddTool(toMcpGoTool(tool), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return dispatch(ctx, reg, toolName, request, logger)
		})
		logger.Debug("registered tool", "name", toolName)
	}

	return mcpServer
}

// Start runs mcpServer over the transport named by transport ("http" or
// "stdio"), blocking until the transport stops or errors.
func Start(mcpServer *server.MCPServer, transport, addr string, factory ServerFactory) error {
	switch transport {
	case "http":
		return factory.CreateHTTPServer(mcpServer).Start(addr)
	case "stdio":
		return factory.CreateStdioServer(mcpServer).Serve()
	default:
		return fmt.Errorf("unsupported transport type: %s", transport)
	}
}

// HTTPHandler exposes mcpServer's streamable-HTTP transport as a plain
// http.Handler, so a caller can wrap it with its own middleware (for
// example pkg/auth's Bearer token middleware) before serving it, instead
// of going through Start/ProductionServerFactory.
func HTTPHandler(mcpServer *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(mcpServer)
}

func toMcpGoTool(tool core.McpTool) mcp.Tool {
	return mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       tool.InputSchema.Type,
			Properties: tool.InputSchema.Properties,
			Required:   tool.InputSchema.Required,
		},
		Annotations: mcp.ToolAnnotation{
			Title:           tool.Annotations.Title,
			ReadOnlyHint:    tool.Annotations.ReadOnlyHint,
			DestructiveHint: tool.Annotations.DestructiveHint,
			IdempotentHint:  tool.Annotations.IdempotentHint,
			OpenWorldHint:   tool.Annotations.OpenWorldHint,
		},
	}
}

func dispatch(ctx context.Context, reg *registry.Registry, toolName string, request mcp.CallToolRequest, logger *slog.Logger) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	// The raw inbound Authorization header, when present, is attached to
	// ctx by pkg/auth's BearerAuthMiddleware before the HTTP transport
	// ever reaches mcp-go; stdio transport has no inbound header to carry.
	authorization := auth.GetAuthorizationHeader(ctx)

	result, err := reg.CallTool(ctx, toolName, args, authorization)
	if err != nil {
		return errorResult(err), nil
	}

	if result.IsImage {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.ImageContent{Type: "image", Data: result.ImageData, MIMEType: result.ImageMediaType},
			},
		}, nil
	}

	if result.Content != nil {
		body, marshalErr := json.MarshalIndent(result.Content, "", "  ")
		if marshalErr != nil {
			logger.Error("marshaling tool result", "tool", toolName, "error", marshalErr)
			return errorResult(&mcperrors.ResponseParsingError{Reason: marshalErr.Error()}), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(body)}},
		}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: result.Text}},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: err.Error()}},
	}
}
