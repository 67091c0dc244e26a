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

// Package jsonschema translates pb33f/libopenapi OpenAPI (3.0/3.1) schema
// nodes into JSON Schema draft-07 documents, carrying the x-parameter-*
// annotation sidecar the parameter engine later reads back.
package jsonschema

import (
	"sort"

	"github.com/pb33f/libopenapi/datamodel/high/base"
	"github.com/oas2mcp/makemcp/pkg/sanitize"
)

// Location is where an annotated property's value travels on the wire.
type Location string

const (
	LocationQuery  Location = "query"
	LocationHeader Location = "header"
	LocationPath   Location = "path"
	LocationCookie Location = "cookie"
	LocationBody   Location = "body"
)

// ParamMeta is attached to a translated schema node for a parameter or
// request body so the Tool Compiler and Parameter Engine can recover
// wire placement without re-deriving it from the OpenAPI document.
type ParamMeta struct {
	Location    Location
	Required    bool
	ContentType string
	Explode     bool
	HasExplode  bool
}

// Translate converts an OpenAPI schema proxy into a JSON Schema draft-07
// document (as a JSON-marshalable map). A nil proxy translates to the
// permissive "any" schema {}.
func Translate(proxy *base.SchemaProxy) map[string]any {
	if proxy == nil {
		return map[string]any{}
	}
	schema := proxy.Schema()
	if schema == nil {
		return map[string]any{}
	}
	return translateSchema(schema)
}

// Annotate stamps the x-parameter-* sidecar fields the Parameter Engine
// reads back onto a translated schema node (typically one property of a
// tool's input_schema).
func Annotate(node map[string]any, meta ParamMeta) map[string]any {
	if meta.Location != "" {
		if meta.Location == LocationBody {
			node["x-location"] = string(meta.Location)
		} else {
			node["x-parameter-location"] = string(meta.Location)
		}
	}
	node["x-parameter-required"] = meta.Required
	if meta.ContentType != "" {
		node["x-content-type"] = meta.ContentType
	}
	if meta.HasExplode {
		node["x-parameter-explode"] = meta.Explode
	}
	return node
}

// AnnotateOriginalName records that a property key was rewritten by the
// name sanitizer, so the original OpenAPI name can be recovered.
func AnnotateOriginalName(node map[string]any, original string) map[string]any {
	node["x-original-name"] = original
	return node
}

// DefaultExplode returns the OpenAPI default explode value for a
// parameter's style: true when style is "form" or unset, false otherwise.
func DefaultExplode(style string) bool {
	return style == "" || style == "form"
}

func translateSchema(schema *base.Schema) map[string]any {
	out := map[string]any{}

	// oneOf suppresses other structural keys, to avoid contradiction.
	if len(schema.OneOf) > 0 {
		variants := make([]any, 0, len(schema.OneOf))
		for _, v := range schema.OneOf {
			variants = append(variants, Translate(v))
		}
		out["oneOf"] = variants
		if schema.Description != "" {
			out["description"] = schema.Description
		}
		return out
	}

	if len(schema.Type) == 1 {
		out["type"] = schema.Type[0]
	} else if len(schema.Type) > 1 {
		types := make([]any, len(schema.Type))
		for i, t := range schema.Type {
			types[i] = t
		}
		out["type"] = types
	}

	if schema.Title != "" {
		out["title"] = schema.Title
	}
	if schema.Description != "" {
		out["description"] = schema.Description
	}
	if schema.Format != "" {
		out["format"] = schema.Format
	}
	if schema.Pattern != "" {
		out["pattern"] = schema.Pattern
	}
	if schema.Minimum != nil {
		out["minimum"] = *schema.Minimum
	}
	if schema.Maximum != nil {
		out["maximum"] = *schema.Maximum
	}
	if v, ok := exclusiveBound(schema.ExclusiveMinimum, schema.Minimum); ok {
		out["exclusiveMinimum"] = v
	}
	if v, ok := exclusiveBound(schema.ExclusiveMaximum, schema.Maximum); ok {
		out["exclusiveMaximum"] = v
	}
	if schema.MultipleOf != nil {
		out["multipleOf"] = *schema.MultipleOf
	}
	if schema.MinLength != nil {
		out["minLength"] = *schema.MinLength
	}
	if schema.MaxLength != nil {
		out["maxLength"] = *schema.MaxLength
	}
	if schema.MinItems != nil {
		out["minItems"] = *schema.MinItems
	}
	if schema.MaxItems != nil {
		out["maxItems"] = *schema.MaxItems
	}
	if schema.UniqueItems != nil && *schema.UniqueItems {
		out["uniqueItems"] = true
	}
	if len(schema.Enum) > 0 {
		values := make([]any, 0, len(schema.Enum))
		for _, n := range schema.Enum {
			values = append(values, nodeToAny(n))
		}
		out["enum"] = values
	}
	if schema.Const != nil {
		out["const"] = nodeToAny(schema.Const)
	}

	switch {
	case len(schema.PrefixItems) > 0:
		translatePrefixItems(out, schema)
	case schema.Items != nil:
		translateItems(out, schema)
	}

	if schema.Properties != nil && schema.Properties.Len() > 0 {
		props := map[string]any{}
		for name, propProxy := range schema.Properties.FromOldest() {
			propSchema := Translate(propProxy)
			safe := sanitize.Name(name)
			if safe != name {
				AnnotateOriginalName(propSchema, name)
			}
			props[safe] = propSchema
		}
		out["properties"] = props
	}
	if len(schema.Required) > 0 {
		required := make([]any, 0, len(schema.Required))
		for _, r := range schema.Required {
			required = append(required, sanitize.Name(r))
		}
		out["required"] = required
	}

	translateAdditionalProperties(out, schema)

	return out
}

// translatePrefixItems down-converts OpenAPI/JSON-Schema-2020-12 prefixItems
// for a draft-07 consumer, per the spec's three-case rule.
func translatePrefixItems(out map[string]any, schema *base.Schema) {
	n := len(schema.PrefixItems)
	trailingIsFalse := false
	if schema.Items != nil && schema.Items.IsB() && !schema.Items.B {
		trailingIsFalse = true
	}

	types := make([]string, 0, n)
	translated := make([]map[string]any, 0, n)
	for _, p := range schema.PrefixItems {
		t := Translate(p)
		translated = append(translated, t)
		if s, ok := t["type"].(string); ok {
			types = append(types, s)
		} else {
			types = append(types, "")
		}
	}

	if trailingIsFalse {
		out["minItems"] = n
		out["maxItems"] = n
	}

	if allSame(types) && types[0] != "" {
		out["items"] = map[string]any{"type": types[0]}
		return
	}

	seen := map[string]bool{}
	unique := make([]map[string]any, 0, n)
	for _, t := range translated {
		key := string(sortedJoin(t))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, t)
		}
	}
	sort.Slice(unique, func(i, j int) bool {
		return sortedJoin(unique[i]) < sortedJoin(unique[j])
	})
	variants := make([]any, len(unique))
	for i, u := range unique {
		variants[i] = u
	}
	out["items"] = map[string]any{"oneOf": variants}
}

func translateItems(out map[string]any, schema *base.Schema) {
	if schema.Items.IsB() {
		if schema.Items.B {
			out["items"] = map[string]any{}
		} else {
			out["items"] = map[string]any{"not": map[string]any{}}
		}
		return
	}
	if schema.Items.A != nil {
		out["items"] = Translate(schema.Items.A)
	}
}

func translateAdditionalProperties(out map[string]any, schema *base.Schema) {
	if schema.AdditionalProperties == nil {
		// OpenAPI 3.0 default: additionalProperties is implicitly true when absent.
		return
	}
	if schema.AdditionalProperties.IsB() {
		out["additionalProperties"] = schema.AdditionalProperties.B
		return
	}
	if schema.AdditionalProperties.A != nil {
		out["additionalProperties"] = Translate(schema.AdditionalProperties.A)
	}
}

// exclusiveBound normalizes libopenapi's dual-typed exclusiveMinimum/Maximum
// (OpenAPI 3.0: bool sibling of minimum/maximum; OpenAPI 3.1: numeric value
// in its own right) into a draft-07 numeric exclusive bound. The 3.0-style
// boolean form, when true, yields the sibling bound's value; it returns
// ok=false when it is false (i.e. no exclusive bound set) or bound is nil.
func exclusiveBound(dv *base.DynamicValue[bool, float64], bound *float64) (float64, bool) {
	if dv == nil {
		return 0, false
	}
	if dv.IsA() {
		if dv.A && bound != nil {
			return *bound, true
		}
		return 0, false
	}
	return dv.B, true
}

func nodeToAny(n any) any {
	type decoder interface{ Decode(any) error }
	if d, ok := n.(decoder); ok {
		var v any
		if err := d.Decode(&v); err == nil {
			return v
		}
	}
	return nil
}

func allSame(vals []string) bool {
	if len(vals) == 0 {
		return false
	}
	for _, v := range vals[1:] {
		if v != vals[0] {
			return false
		}
	}
	return true
}

func sortedJoin(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += k + "="
	}
	return s
}
