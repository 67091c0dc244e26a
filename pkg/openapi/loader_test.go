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
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const minimalSpec = `
openapi: 3.1.0
info:
  title: Minimal API
  version: 1.0.0
paths:
  /ping:
    get:
      operationId: ping
      responses:
        '200':
          description: ok
`

const invalidSpec = `
openapi: 3.1.0
info:
  title: Invalid API
paths:
  /ping:
    get:
      responses:
        '200':
          description: ok
`

func writeSpecFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write spec file: %v", err)
	}
	return path
}

func TestLoad_LocalFile(t *testing.T) {
	path := writeSpecFile(t, minimalSpec)

	doc, err := Load(discardLogger(), path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Model.Model.Info.Title != "Minimal API" {
		t.Errorf("Title = %q, want Minimal API", doc.Model.Model.Info.Title)
	}
	if doc.Resolver == nil {
		t.Error("expected a non-nil resolver")
	}
}

func TestLoad_LocalFileNotFound(t *testing.T) {
	_, err := Load(discardLogger(), "/nonexistent/path/spec.yaml", false)
	if err == nil {
		t.Fatal("expected an error loading a nonexistent file")
	}
}

func TestLoad_HTTPURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(minimalSpec))
	}))
	defer server.Close()

	doc, err := Load(discardLogger(), server.URL, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Model.Model.Info.Title != "Minimal API" {
		t.Errorf("Title = %q, want Minimal API", doc.Model.Model.Info.Title)
	}
}

func TestLoad_StrictValidationFailsOnValidationErrors(t *testing.T) {
	path := writeSpecFile(t, invalidSpec)

	_, err := Load(discardLogger(), path, true)
	if err == nil {
		t.Fatal("expected an error in strict validation mode for a spec missing info.version")
	}
}

func TestLoad_PermissiveModeToleratesValidationErrors(t *testing.T) {
	path := writeSpecFile(t, invalidSpec)

	doc, err := Load(discardLogger(), path, false)
	if err != nil {
		t.Fatalf("expected permissive mode to tolerate validation warnings, got error: %v", err)
	}
	if doc == nil {
		t.Fatal("expected a document even in permissive mode")
	}
}

func TestForEachOperation_VisitsEveryPathAndMethod(t *testing.T) {
	path := writeSpecFile(t, petSpec)
	doc, err := Load(discardLogger(), path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var visited []string
	err = doc.ForEachOperation(func(method, p string, operation *v3.Operation) error {
		visited = append(visited, method+" "+p)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(visited) != 3 {
		t.Fatalf("expected 3 operations visited, got %v", visited)
	}
	joined := strings.Join(visited, ",")
	for _, want := range []string{"get /pets/{petId}", "delete /pets/{petId}", "post /pets"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected to visit %q, got %v", want, visited)
		}
	}
}

func TestForEachOperation_PropagatesCallbackError(t *testing.T) {
	path := writeSpecFile(t, minimalSpec)
	doc, err := Load(discardLogger(), path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sentinel := errSentinel{}
	err = doc.ForEachOperation(func(method, p string, operation *v3.Operation) error {
		return sentinel
	})
	if err != sentinel {
		t.Errorf("expected ForEachOperation to propagate the callback error, got %v", err)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "sentinel" }
