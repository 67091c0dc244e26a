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

package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oas2mcp/makemcp/pkg/authzpolicy"
	"github.com/oas2mcp/makemcp/pkg/core"
	"github.com/oas2mcp/makemcp/pkg/httpexec"
	"github.com/oas2mcp/makemcp/pkg/mcperrors"
	"github.com/oas2mcp/makemcp/pkg/openapi"
	"github.com/oas2mcp/makemcp/pkg/transform"
)

func newTestEntry(name, method, path string) *core.ToolCatalogEntry {
	return &core.ToolCatalogEntry{
		Tool: core.McpTool{
			Name: name,
			InputSchema: core.McpToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"id": map[string]any{"type": "string"}},
				Required:   []string{"id"},
			},
		},
		Method:            method,
		Path:              path,
		ParameterMappings: map[string]core.ParameterMapping{"id": {OriginalName: "id", Location: core.LocationPath}},
	}
}

func TestCallTool_ToolNotFound_SuggestsOnlyVisible(t *testing.T) {
	entries := []*core.ToolCatalogEntry{
		newTestEntry("get_pet", "GET", "/pets/{id}"),
		newTestEntry("get_pets", "GET", "/pets"),
		newTestEntry("delete_secret_tool", "DELETE", "/secret"),
	}
	client := httpexec.New("http://example.com", nil, authzpolicy.New(authzpolicy.Compliant, nil))
	filter := func(name string) bool { return name != "delete_secret_tool" }
	r := New(entries, client, openapi.NewContentTypeRegistry(), transform.NewRegistry(), filter)

	_, err := r.CallTool(context.Background(), "get_pett", map[string]any{"id": "1"}, "")
	var notFound *mcperrors.ToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ToolNotFound, got %v", err)
	}
	for _, s := range notFound.Suggestions {
		if s == "delete_secret_tool" {
			t.Fatal("suggestion leaked a filtered-out tool name")
		}
	}
	if len(notFound.Suggestions) == 0 {
		t.Fatal("expected at least one suggestion for a close typo")
	}
}

func TestCallTool_InvalidParameters(t *testing.T) {
	entries := []*core.ToolCatalogEntry{newTestEntry("get_pet", "GET", "/pets/{id}")}
	client := httpexec.New("http://example.com", nil, authzpolicy.New(authzpolicy.Compliant, nil))
	r := New(entries, client, openapi.NewContentTypeRegistry(), transform.NewRegistry(), nil)

	_, err := r.CallTool(context.Background(), "get_pet", map[string]any{}, "")
	var invalid *mcperrors.InvalidParameters
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}
}

func TestCallTool_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"fido"}`))
	}))
	defer srv.Close()

	entries := []*core.ToolCatalogEntry{newTestEntry("get_pet", "GET", "/pets/{id}")}
	client := httpexec.New(srv.URL, nil, authzpolicy.New(authzpolicy.Compliant, nil))
	r := New(entries, client, openapi.NewContentTypeRegistry(), transform.NewRegistry(), nil)

	result, err := r.CallTool(context.Background(), "get_pet", map[string]any{"id": "1"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	envelope, ok := result.Content.(map[string]any)
	if !ok {
		t.Fatalf("expected structured content envelope, got %#v", result)
	}
	if envelope["status"] != 200 {
		t.Errorf("expected status 200, got %v", envelope["status"])
	}
}

func TestListTools_FiltersHiddenTools(t *testing.T) {
	entries := []*core.ToolCatalogEntry{
		newTestEntry("visible_tool", "GET", "/a"),
		newTestEntry("hidden_tool", "GET", "/b"),
	}
	client := httpexec.New("http://example.com", nil, authzpolicy.New(authzpolicy.Compliant, nil))
	filter := func(name string) bool { return name != "hidden_tool" }
	r := New(entries, client, openapi.NewContentTypeRegistry(), transform.NewRegistry(), filter)

	tools := r.ListTools()
	if len(tools) != 1 || tools[0].Name != "visible_tool" {
		t.Fatalf("expected only visible_tool, got %#v", tools)
	}
}
