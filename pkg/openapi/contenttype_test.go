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

package openapi

import (
	"encoding/json"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/pb33f/libopenapi"
	"github.com/pb33f/libopenapi/datamodel"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// mediaTypeFor builds a minimal POST /test operation carrying the given
// request body YAML and returns the v3.MediaType for contentType.
func mediaTypeFor(t *testing.T, contentType, requestBody string) *v3.MediaType {
	t.Helper()

	spec := `
openapi: 3.0.0
info:
  title: Test API
  version: 1.0.0
paths:
  /test:
    post:
      requestBody:
        content:
          ` + contentType + `:
` + requestBody + `
      responses:
        '200':
          description: ok
`
	cfg := datamodel.NewDocumentConfiguration()
	document, err := libopenapi.NewDocumentWithConfiguration([]byte(spec), cfg)
	if err != nil {
		t.Fatalf("failed to create document: %v", err)
	}
	model, errs := document.BuildV3Model()
	if len(errs) > 0 {
		t.Fatalf("failed to build v3 model: %v", errs[0])
	}

	pathItem, ok := model.Model.Paths.PathItems.Get("/test")
	if !ok || pathItem.Post == nil {
		t.Fatal("expected POST /test operation")
	}
	media, ok := pathItem.Post.RequestBody.Content.Get(contentType)
	if !ok {
		t.Fatalf("expected content type %s in request body", contentType)
	}
	return media
}

func TestContentTypeRegistry_GetFallsBackToJSON(t *testing.T) {
	r := NewContentTypeRegistry()

	if _, ok := r.Get("application/json").(*jsonHandler); !ok {
		t.Error("expected application/json to resolve to jsonHandler")
	}
	if _, ok := r.Get("application/x-made-up").(*jsonHandler); !ok {
		t.Error("expected an unrecognized content type to fall back to jsonHandler")
	}
}

func TestContentTypeRegistry_WildcardMatch(t *testing.T) {
	r := NewContentTypeRegistry()

	if _, ok := r.Get("text/csv").(*plainTextHandler); !ok {
		t.Error("expected text/csv to match the text/* handler registration")
	}
}

func TestContentTypeRegistry_PriorityContentTypesIsRegistrationOrder(t *testing.T) {
	r := NewContentTypeRegistry()
	order := r.PriorityContentTypes()
	if len(order) == 0 {
		t.Fatal("expected at least one registered content type")
	}
	if order[0] != "application/json" {
		t.Errorf("expected application/json first, got %v", order)
	}
}

func TestJSONHandler_ExtractSchema(t *testing.T) {
	media := mediaTypeFor(t, "application/json", `            schema:
              type: object
              properties:
                name:
                  type: string
              required: [name]`)

	h := &jsonHandler{}
	schema := h.ExtractSchema(media)
	if schema["type"] != "object" {
		t.Errorf("expected type=object, got %v", schema["type"])
	}
	if _, ok := schema["properties"].(map[string]any); !ok {
		t.Errorf("expected properties map, got %+v", schema)
	}
}

func TestJSONHandler_BuildRequestBody_SingleRequestBodyParam(t *testing.T) {
	h := &jsonHandler{}
	body, err := h.BuildRequestBody(map[string]any{
		"request_body": map[string]any{"name": "widget", "qty": float64(2)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := io.ReadAll(body)

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v, body: %s", err, raw)
	}
	if decoded["name"] != "widget" {
		t.Errorf("expected name=widget, got %v", decoded["name"])
	}
	if _, hasWrapper := decoded["request_body"]; hasWrapper {
		t.Error("the request_body value should be serialized verbatim, not nested under a request_body key")
	}
}

func TestJSONHandler_BuildRequestBody_Empty(t *testing.T) {
	h := &jsonHandler{}
	body, err := h.BuildRequestBody(map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != nil {
		t.Error("expected nil reader for empty body params")
	}
}

func TestXMLHandler_BuildRequestBody_RequiresStringForSingleParam(t *testing.T) {
	h := &xmlHandler{}
	_, err := h.BuildRequestBody(map[string]any{"request_body": 42})
	if err == nil {
		t.Error("expected an error when request_body is not a string for XML")
	}
}

func TestXMLHandler_BuildRequestBody_ValidXMLString(t *testing.T) {
	h := &xmlHandler{}
	body, err := h.BuildRequestBody(map[string]any{"request_body": "<root><name>widget</name></root>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := io.ReadAll(body)
	if !strings.Contains(string(raw), "<root>") {
		t.Errorf("expected raw XML to pass through verbatim, got %s", raw)
	}
}

func TestFormHandler_BuildRequestBody_MultipleFieldsFallback(t *testing.T) {
	h := &formHandler{}
	// More than one body param is no longer the shape the compiler
	// produces, but the handler still falls back to encoding every field
	// when it receives one (defense in depth, not a supported input path).
	body, err := h.BuildRequestBody(map[string]any{"a": "1", "b": "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := io.ReadAll(body)
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		t.Fatalf("expected valid form encoding, got error: %v", err)
	}
	if values.Get("a") != "1" || values.Get("b") != "2" {
		t.Errorf("expected a=1&b=2, got %v", values)
	}
}

func TestFormHandler_ExtractSchema_FallsBackWithoutProperties(t *testing.T) {
	media := mediaTypeFor(t, "application/x-www-form-urlencoded", `            schema:
              type: string`)
	h := &formHandler{}
	schema := h.ExtractSchema(media)
	if schema["type"] != "string" {
		t.Errorf("expected fallback schema type=string, got %v", schema["type"])
	}
	if _, hasDescription := schema["description"]; !hasDescription {
		t.Error("expected fallback schema to carry a description")
	}
}

func TestMultipartHandler_ExtractSchema_MarksBinaryFields(t *testing.T) {
	media := mediaTypeFor(t, "multipart/form-data", `            schema:
              type: object
              properties:
                file:
                  type: string
                  format: binary
                caption:
                  type: string`)

	h := &multipartHandler{}
	schema := h.ExtractSchema(media)
	props := schema["properties"].(map[string]any)
	file := props["file"].(map[string]any)
	if file["type"] != "string" || file["format"] != "binary" {
		t.Errorf("expected file field to stay type=string, format=binary, got %+v", file)
	}
	caption := props["caption"].(map[string]any)
	if caption["type"] != "string" {
		t.Errorf("expected caption field type=string, got %+v", caption)
	}
}

func TestPlainTextHandler_BuildRequestBody(t *testing.T) {
	h := &plainTextHandler{}

	t.Run("single request_body string passes through", func(t *testing.T) {
		body, err := h.BuildRequestBody(map[string]any{"request_body": "hello world"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		raw, _ := io.ReadAll(body)
		if string(raw) != "hello world" {
			t.Errorf("expected hello world, got %q", raw)
		}
	})

	t.Run("missing request_body errors", func(t *testing.T) {
		_, err := h.BuildRequestBody(map[string]any{"other": "value"})
		if err == nil {
			t.Error("expected an error when request_body is absent")
		}
	})

	t.Run("empty body params is a no-op", func(t *testing.T) {
		body, err := h.BuildRequestBody(map[string]any{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if body != nil {
			t.Error("expected nil reader for empty body params")
		}
	})
}

func TestSingleBodyParam(t *testing.T) {
	if v, ok := singleBodyParam(map[string]any{"request_body": "x"}); !ok || v != "x" {
		t.Errorf("expected (x, true), got (%v, %v)", v, ok)
	}
	if _, ok := singleBodyParam(map[string]any{"body": "x"}); ok {
		t.Error("expected the legacy 'body' key to no longer be recognized")
	}
	if _, ok := singleBodyParam(map[string]any{"request_body": "x", "extra": "y"}); ok {
		t.Error("expected singleBodyParam to require exactly one body parameter")
	}
	if _, ok := singleBodyParam(map[string]any{}); ok {
		t.Error("expected no match for empty body params")
	}
}
