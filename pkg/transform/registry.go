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

// Package transform implements the Response Transformer Hook (C10): a
// named, pluggable pair of pure functions applied to a tool's compiled
// output schema once at compile time, and to each call's parsed
// response body at call time, resolved per-tool, then globally, then
// not at all.
package transform

import (
	"sort"

	"github.com/oas2mcp/makemcp/pkg/core"
)

// Registry holds named ResponseTransformer implementations and the
// per-tool/global bindings the compiler and dispatcher consult.
type Registry struct {
	transformers map[string]core.ResponseTransformer
	global       string
	perTool      map[string]string
}

// NewRegistry builds an empty transformer registry.
func NewRegistry() *Registry {
	return &Registry{
		transformers: map[string]core.ResponseTransformer{},
		perTool:      map[string]string{},
	}
}

// Register adds a transformer, addressable later by its Name().
func (r *Registry) Register(t core.ResponseTransformer) {
	r.transformers[t.Name()] = t
}

// SetGlobal designates the transformer applied to every tool that has
// no more specific per-tool binding. name must already be registered.
func (r *Registry) SetGlobal(name string) {
	r.global = name
}

// BindTool designates the transformer applied to one specific tool,
// overriding the global binding for that tool only.
func (r *Registry) BindTool(toolName, transformerName string) {
	r.perTool[toolName] = transformerName
}

// Resolve returns the transformer that applies to toolName: a per-tool
// binding first, the global binding second, nil if neither is set or
// the named transformer was never registered.
func (r *Registry) Resolve(toolName string) core.ResponseTransformer {
	if name, ok := r.perTool[toolName]; ok {
		if t, ok := r.transformers[name]; ok {
			return t
		}
	}
	if r.global != "" {
		if t, ok := r.transformers[r.global]; ok {
			return t
		}
	}
	return nil
}

// Names returns every registered transformer name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.transformers))
	for name := range r.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplySchema applies t (if non-nil) to a compiled output schema.
func ApplySchema(t core.ResponseTransformer, schema map[string]any) map[string]any {
	if t == nil {
		return schema
	}
	return t.TransformSchema(schema)
}

// ApplyResponse applies t (if non-nil) to one call's parsed response body.
func ApplyResponse(t core.ResponseTransformer, value any) any {
	if t == nil {
		return value
	}
	return t.TransformResponse(value)
}
