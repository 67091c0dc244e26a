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

// Package refresolve dereferences local "#/components/schemas/<name>"
// $ref pointers against the raw OpenAPI document, detecting cycles and
// preserving the summary/description that OpenAPI 3.1 allows to sit
// alongside a $ref sibling (which libopenapi's high-level model
// discards once it resolves the reference).
package refresolve

import (
	"fmt"
	"strings"

	"github.com/oas2mcp/makemcp/pkg/mcperrors"
	"gopkg.in/yaml.v3"
)

const schemaRefPrefix = "#/components/schemas/"

// RefMeta carries the summary/description that sat beside a $ref sibling
// in the raw document, per OpenAPI 3.1's "reference object" siblings.
type RefMeta struct {
	Summary     string
	Description string
}

// Resolver resolves local component-schema references against one raw
// OpenAPI document, decoded once at construction time.
type Resolver struct {
	root    *yaml.Node
	schemas map[string]*yaml.Node
}

// New builds a Resolver from the raw bytes of an OpenAPI document (JSON
// is valid YAML, so this accepts both).
func New(specBytes []byte) (*Resolver, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(specBytes, &root); err != nil {
		return nil, fmt.Errorf("refresolve: parsing document: %w", err)
	}
	schemas := map[string]*yaml.Node{}
	schemasNode := findPath(&root, "components", "schemas")
	if schemasNode != nil && schemasNode.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(schemasNode.Content); i += 2 {
			name := schemasNode.Content[i].Value
			schemas[name] = schemasNode.Content[i+1]
		}
	}
	return &Resolver{root: &root, schemas: schemas}, nil
}

// OperationNode returns the raw node for "paths.<path>.<method>" (method
// lowercased), or nil if the document has no such operation. Callers use
// this to reach into raw parameter/requestBody nodes for $ref-sibling
// metadata the high-level OpenAPI model already resolved away.
func (r *Resolver) OperationNode(method, path string) *yaml.Node {
	return findPath(r.root, "paths", path, strings.ToLower(method))
}

// ParameterSchemaNode returns the raw schema node (possibly itself a
// $ref object) for the named parameter of the given raw operation node.
func ParameterSchemaNode(operationNode *yaml.Node, paramName string) *yaml.Node {
	if operationNode == nil {
		return nil
	}
	paramsNode := findPath(operationNode, "parameters")
	if paramsNode == nil || paramsNode.Kind != yaml.SequenceNode {
		return nil
	}
	for _, p := range paramsNode.Content {
		if findScalar(p, "name") == paramName {
			if s := findPath(p, "schema"); s != nil {
				return s
			}
		}
	}
	return nil
}

// RequestBodySchemaNode returns the raw schema node for the given
// content type on the operation's requestBody, if present.
func RequestBodySchemaNode(operationNode *yaml.Node, contentType string) *yaml.Node {
	if operationNode == nil {
		return nil
	}
	return findPath(operationNode, "requestBody", "content", contentType, "schema")
}

func findScalar(node *yaml.Node, key string) string {
	n := findPath(node, key)
	if n == nil {
		return ""
	}
	return n.Value
}

// Resolve dereferences ref (e.g. "#/components/schemas/Pet"), returning
// the resolved schema node and an error if the ref is unsupported,
// unknown, or participates in a cycle. The returned RefMeta is always
// empty: Resolve sees only the ref string, so $ref-sibling
// summary/description is collected by ResolveNode.
//
// visited tracks refs already entered on the current resolution path;
// pass a fresh, empty set (or nil) for a top-level call. Resolve detects
// a cycle the moment the same ref is entered twice on one path and fails
// with mcperrors.CircularReference without aborting the whole catalog —
// callers should catch the error and skip only the offending operation.
func (r *Resolver) Resolve(ref string, visited map[string]bool) (*yaml.Node, RefMeta, error) {
	if !strings.HasPrefix(ref, schemaRefPrefix) {
		return nil, RefMeta{}, &mcperrors.UnsupportedReference{Ref: ref}
	}
	if visited == nil {
		visited = map[string]bool{}
	}
	if visited[ref] {
		return nil, RefMeta{}, &mcperrors.CircularReference{Ref: ref}
	}
	visited[ref] = true

	name := strings.TrimPrefix(ref, schemaRefPrefix)
	node, ok := r.schemas[name]
	if !ok {
		return nil, RefMeta{}, fmt.Errorf("refresolve: unknown schema %q", ref)
	}
	return node, RefMeta{}, nil
}

// ResolveNode resolves the $ref sibling of node, if node itself is a
// reference object ({"$ref": "...", "summary": "...", "description": "..."}).
// It returns node unchanged, with a zero RefMeta, when node is not a
// reference object at all.
func (r *Resolver) ResolveNode(node *yaml.Node, visited map[string]bool) (*yaml.Node, RefMeta, error) {
	if node == nil || node.Kind != yaml.MappingNode {
		return node, RefMeta{}, nil
	}
	var refValue string
	var meta RefMeta
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "$ref":
			refValue = val.Value
		case "summary":
			meta.Summary = val.Value
		case "description":
			meta.Description = val.Value
		}
	}
	if refValue == "" {
		return node, RefMeta{}, nil
	}
	resolved, _, err := r.Resolve(refValue, visited)
	if err != nil {
		return nil, RefMeta{}, err
	}
	return resolved, meta, nil
}

// DescriptionFor applies the precedence rule from the spec: ref.description
// > ref.summary > the resolved schema's own description > fallback.
func DescriptionFor(meta RefMeta, resolvedDescription, fallback string) string {
	switch {
	case meta.Description != "":
		return meta.Description
	case meta.Summary != "":
		return meta.Summary
	case resolvedDescription != "":
		return resolvedDescription
	default:
		return fallback
	}
}

func findPath(root *yaml.Node, path ...string) *yaml.Node {
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	for _, key := range path {
		if node == nil || node.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == key {
				next = node.Content[i+1]
				break
			}
		}
		node = next
	}
	return node
}
