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

package refresolve

import (
	"errors"
	"testing"

	"github.com/oas2mcp/makemcp/pkg/mcperrors"
)

const testSpec = `
components:
  schemas:
    Pet:
      type: object
      properties:
        name:
          type: string
        owner:
          $ref: '#/components/schemas/Owner'
    Owner:
      type: object
      properties:
        pet:
          $ref: '#/components/schemas/Pet'
    Named:
      $ref: '#/components/schemas/Pet'
`

func mustResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := New([]byte(testSpec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestResolve_Basic(t *testing.T) {
	r := mustResolver(t)
	node, _, err := r.Resolve("#/components/schemas/Pet", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if node == nil {
		t.Fatal("expected a node")
	}
}

func TestResolve_UnsupportedRef(t *testing.T) {
	r := mustResolver(t)
	_, _, err := r.Resolve("#/components/responses/Foo", nil)
	var unsupported *mcperrors.UnsupportedReference
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedReference, got %v", err)
	}
}

func TestResolve_CycleDetected(t *testing.T) {
	r := mustResolver(t)
	visited := map[string]bool{}
	petNode, _, err := r.Resolve("#/components/schemas/Pet", visited)
	if err != nil {
		t.Fatalf("Resolve Pet: %v", err)
	}
	ownerRefNode := findPath(petNode, "properties", "owner")
	ownerNode, _, err := r.ResolveNode(ownerRefNode, visited)
	if err != nil {
		t.Fatalf("ResolveNode Owner: %v", err)
	}
	petRefNode := findPath(ownerNode, "properties", "pet")
	_, _, err = r.ResolveNode(petRefNode, visited)
	var circular *mcperrors.CircularReference
	if !errors.As(err, &circular) {
		t.Fatalf("expected CircularReference for Pet -> Owner -> Pet, got %v", err)
	}
}

func TestDescriptionFor_Precedence(t *testing.T) {
	if got := DescriptionFor(RefMeta{Description: "d", Summary: "s"}, "schema-desc", "fallback"); got != "d" {
		t.Errorf("description should win, got %q", got)
	}
	if got := DescriptionFor(RefMeta{Summary: "s"}, "schema-desc", "fallback"); got != "s" {
		t.Errorf("summary should win over schema description, got %q", got)
	}
	if got := DescriptionFor(RefMeta{}, "schema-desc", "fallback"); got != "schema-desc" {
		t.Errorf("schema description should win over fallback, got %q", got)
	}
	if got := DescriptionFor(RefMeta{}, "", "fallback"); got != "fallback" {
		t.Errorf("fallback should be used last, got %q", got)
	}
}
