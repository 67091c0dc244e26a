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

// Package registry implements the Tool Registry & Dispatcher (C7): it
// holds the compiled tool catalog, serves list_tools filtered by an
// access policy, and dispatches call_tool through the Parameter Engine
// and HTTP Execution Engine, never leaking the names of filtered-out
// tools in a "tool not found" suggestion.
package registry

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/xrash/smetrics"

	"github.com/oas2mcp/makemcp/pkg/core"
	"github.com/oas2mcp/makemcp/pkg/httpexec"
	"github.com/oas2mcp/makemcp/pkg/mcperrors"
	"github.com/oas2mcp/makemcp/pkg/openapi"
	"github.com/oas2mcp/makemcp/pkg/paramengine"
	"github.com/oas2mcp/makemcp/pkg/transform"
)

const nameSuggestionThreshold = 0.7

// AccessFilter decides whether a tool name is visible to the current
// caller. A nil AccessFilter admits every tool.
type AccessFilter func(toolName string) bool

// Registry is the single, request-shared dispatcher for one compiled
// OpenAPI source: catalog lookup, parameter validation, HTTP execution,
// and response shaping all happen through it.
type Registry struct {
	entries      map[string]*core.ToolCatalogEntry
	order        []string
	client       *httpexec.Client
	contentTypes *openapi.ContentTypeRegistry
	transformers *transform.Registry
	accessFilter AccessFilter
}

// New builds a Registry from a compiled catalog.
func New(entries []*core.ToolCatalogEntry, client *httpexec.Client, contentTypes *openapi.ContentTypeRegistry, transformers *transform.Registry, accessFilter AccessFilter) *Registry {
	r := &Registry{
		entries:      map[string]*core.ToolCatalogEntry{},
		client:       client,
		contentTypes: contentTypes,
		transformers: transformers,
		accessFilter: accessFilter,
	}
	for _, e := range entries {
		r.entries[e.GetName()] = e
		r.order = append(r.order, e.GetName())
	}
	sort.Strings(r.order)
	return r
}

func (r *Registry) visible(name string) bool {
	return r.accessFilter == nil || r.accessFilter(name)
}

// ListTools returns the MCP tool definitions for every catalog entry
// the access filter admits, with any bound response transformer's
// schema adjustment applied.
func (r *Registry) ListTools() []core.McpTool {
	tools := make([]core.McpTool, 0, len(r.order))
	for _, name := range r.order {
		if !r.visible(name) {
			continue
		}
		entry := r.entries[name]
		if t := r.transformers.Resolve(name); t != nil && entry.OutputSchema != nil {
			entry.OutputSchema = transform.ApplySchema(t, entry.OutputSchema)
		}
		tools = append(tools, entry.ToMcpTool())
	}
	return tools
}

// visibleNames returns the sorted names of every admitted tool, used
// only for fuzzy "did you mean" suggestions -- a filtered-out tool's
// name never appears here.
func (r *Registry) visibleNames() []string {
	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.visible(name) {
			names = append(names, name)
		}
	}
	return names
}

func (r *Registry) suggestToolNames(name string) []string {
	type scored struct {
		name  string
		score float64
	}
	var candidates []scored
	for _, n := range r.visibleNames() {
		s := smetrics.JaroWinkler(name, n, 0.7, 4)
		if s >= nameSuggestionThreshold {
			candidates = append(candidates, scored{n, s})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.name)
	}
	return out
}

// CallResult is the outcome of one dispatched tool call: either content
// to render back to the MCP client, or a typed error.
type CallResult struct {
	// Content is the structured envelope (status + body) for a parsed
	// JSON response, nil otherwise.
	Content any

	IsImage        bool
	ImageData      string
	ImageMediaType string

	// Text is the single rendered text block for non-structured,
	// non-image responses.
	Text string
}

// CallTool validates args, executes the HTTP request, and shapes the
// response, or returns a *mcperrors.ToolNotFound / *mcperrors.InvalidParameters
// / network error as appropriate.
func (r *Registry) CallTool(ctx context.Context, toolName string, args map[string]any, callerAuthorization string) (*CallResult, error) {
	entry, ok := r.entries[toolName]
	if !ok || !r.visible(toolName) {
		return nil, &mcperrors.ToolNotFound{ToolName: toolName, Suggestions: r.suggestToolNames(toolName)}
	}

	extracted, err := paramengine.Extract(entry, args)
	if err != nil {
		return nil, err
	}

	handler := r.contentTypes.Get(entry.RequestContentType)
	resp, netErr := r.client.Execute(
		ctx, entry.Method, entry.Path, extracted, callerAuthorization,
		len(entry.Security) > 0, toolName, handler.BuildRequestBody, entry.RequestContentType,
	)
	if netErr != nil {
		return nil, netErr
	}

	return r.shapeResult(entry, resp), nil
}

func (r *Registry) shapeResult(entry *core.ToolCatalogEntry, resp *httpexec.Response) *CallResult {
	if resp.IsImage {
		data, mediaType, err := httpexec.ImageContent(resp)
		if err != nil {
			return &CallResult{Text: httpexec.FormatText(resp)}
		}
		return &CallResult{IsImage: true, ImageData: data, ImageMediaType: mediaType}
	}

	var parsed any
	if resp.BodyText != "" {
		if err := json.Unmarshal([]byte(resp.BodyText), &parsed); err != nil {
			return &CallResult{Text: httpexec.FormatText(resp)}
		}
	}

	if parsed == nil {
		return &CallResult{Text: httpexec.FormatText(resp)}
	}

	if t := r.transformers.Resolve(entry.GetName()); t != nil {
		parsed = transform.ApplyResponse(t, parsed)
	}
	return &CallResult{Content: wrapEnvelope(resp, parsed)}
}

func wrapEnvelope(resp *httpexec.Response, body any) map[string]any {
	envelope := map[string]any{"status": resp.StatusCode}
	if resp.IsSuccess {
		envelope["body"] = body
	} else {
		envelope["body"] = map[string]any{
			"kind":    "HTTPError",
			"message": resp.StatusText,
			"details": body,
		}
	}
	return envelope
}

// Names returns every visible tool name, for diagnostics and tests.
func (r *Registry) Names() []string { return r.visibleNames() }

// Entry returns the catalog entry for name, ignoring visibility -- for
// internal wiring (e.g. config-only dumps) that must see the full set.
func (r *Registry) Entry(name string) (*core.ToolCatalogEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// AllEntries returns every compiled entry in name order, ignoring
// visibility, for --config-only persistence (A6).
func (r *Registry) AllEntries() []*core.ToolCatalogEntry {
	out := make([]*core.ToolCatalogEntry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}
