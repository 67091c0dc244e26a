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
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/pb33f/libopenapi/datamodel/high/base"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
	"gopkg.in/yaml.v3"

	"github.com/oas2mcp/makemcp/pkg/core"
	"github.com/oas2mcp/makemcp/pkg/jsonschema"
	"github.com/oas2mcp/makemcp/pkg/refresolve"
	"github.com/oas2mcp/makemcp/pkg/sanitize"
)

// Translate is the package-local entry point into the schema translator,
// kept here so the content-type handlers in this package don't need to
// import pkg/jsonschema directly by name at every call site.
func Translate(proxy *base.SchemaProxy) map[string]any { return jsonschema.Translate(proxy) }

// CompileOptions are the compile-time filters and toggles the Tool
// Compiler (C4) honors; all are optional.
type CompileOptions struct {
	TagFilter               []string // operations without a matching tag (kebab-compared) are excluded
	MethodFilter            []string // HTTP verbs to include; empty means all
	OperationIDsInclude     []string // explicit allow-list by operationId
	OperationIDsExclude     []string // explicit deny-list by operationId
	SkipToolDescriptions    bool
	SkipParameterDescriptions bool
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// Compile walks every operation in doc and emits one ToolCatalogEntry per
// accepted operation (C4), in document order. An operation is rejected
// by the compile-time filters, or — having passed them — is skipped with
// a logged reason (not a fatal error) when it fails one of the emission
// invariants (duplicate name, empty path, etc).
func Compile(doc *Document, opts CompileOptions, registry *ContentTypeRegistry) ([]*core.ToolCatalogEntry, []string, error) {
	var entries []*core.ToolCatalogEntry
	var skipped []string
	seenNames := map[string]bool{}

	err := doc.ForEachOperation(func(method, path string, operation *v3.Operation) error {
		if !acceptOperation(method, operation, opts) {
			return nil
		}
		entry, reason := compileOperation(doc, method, path, operation, opts, registry)
		if entry == nil {
			skipped = append(skipped, fmt.Sprintf("%s %s: %s", method, path, reason))
			return nil
		}
		if seenNames[entry.Tool.Name] {
			skipped = append(skipped, fmt.Sprintf("%s %s: duplicate tool name %q", method, path, entry.Tool.Name))
			return nil
		}
		seenNames[entry.Tool.Name] = true
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entries, skipped, nil
}

func acceptOperation(method string, operation *v3.Operation, opts CompileOptions) bool {
	methodUpper := strings.ToUpper(method)
	if len(opts.MethodFilter) > 0 && !containsFold(opts.MethodFilter, methodUpper) {
		return false
	}
	if len(opts.TagFilter) > 0 {
		if len(operation.Tags) == 0 {
			return false
		}
		if !anyTagMatches(operation.Tags, opts.TagFilter) {
			return false
		}
	}
	opID := operation.OperationId
	if len(opts.OperationIDsInclude) > 0 {
		return containsFold(opts.OperationIDsInclude, opID)
	}
	if len(opts.OperationIDsExclude) > 0 {
		return !containsFold(opts.OperationIDsExclude, opID)
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func anyTagMatches(tags, filters []string) bool {
	for _, tag := range tags {
		for _, f := range filters {
			if kebab(tag) == kebab(f) {
				return true
			}
		}
	}
	return false
}

// kebab normalizes a tag to lowercase, word-split, hyphen-joined form so
// "Pet Store", "pet_store", and "pet-store" all compare equal.
func kebab(s string) string {
	var b strings.Builder
	prevWasSep := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			prevWasSep = false
		default:
			if !prevWasSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			prevWasSep = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func compileOperation(doc *Document, method, path string, operation *v3.Operation, opts CompileOptions, registry *ContentTypeRegistry) (*core.ToolCatalogEntry, string) {
	methodUpper := strings.ToUpper(method)
	if !validMethods[methodUpper] {
		return nil, fmt.Sprintf("unsupported HTTP method %q", method)
	}
	if path == "" {
		return nil, "empty path"
	}

	opNode := doc.Resolver.OperationNode(method, path)

	name := toolName(operation, method, path)
	properties := map[string]any{}
	var required []string
	mappings := map[string]core.ParameterMapping{}

	for _, param := range operation.Parameters {
		if param == nil {
			continue
		}
		addParameter(doc, opNode, param, properties, &required, mappings, opts)
	}

	contentType, media := determineContentType(operation, registry)
	if media != nil {
		bodyRequired := operation.RequestBody.Required != nil && *operation.RequestBody.Required
		addRequestBody(doc, opNode, properties, &required, mappings, media, contentType, registry, opts, bodyRequired)
	}

	if len(properties) > 0 {
		if _, hasPathOnly := properties["timeout_seconds"]; !hasPathOnly {
			timeoutSchema := map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 300,
				"default": 30,
			}
			if !opts.SkipParameterDescriptions {
				timeoutSchema["description"] = "Per-call timeout in seconds (1-300, default 30)."
			}
			properties["timeout_seconds"] = timeoutSchema
		}
	}

	inputSchema := core.McpToolInputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}

	description := ""
	if !opts.SkipToolDescriptions {
		description = composeDescription(operation, methodUpper, path)
	}

	entry := &core.ToolCatalogEntry{
		Tool: core.McpTool{
			Name:        name,
			Description: description,
			InputSchema: inputSchema,
			Annotations: annotationsFor(methodUpper, name),
		},
		Method:             methodUpper,
		Path:               path,
		RequestContentType: contentType,
		OutputSchema:       outputSchema(operation),
		Security:          securitySchemes(operation),
		ParameterMappings: mappings,
	}
	return entry, ""
}

func toolName(operation *v3.Operation, method, path string) string {
	name := operation.OperationId
	if name == "" {
		name = fmt.Sprintf("%s_%s", method, path)
	}
	replacer := strings.NewReplacer("{", "", "}", "", "/", "_", "-", "_")
	return strings.ToLower(replacer.Replace(name))
}

// addParameter sanitizes one path/query/header/cookie parameter into the
// input schema, recording a parameter_mappings entry for every parameter,
// whether or not sanitization changed its name (header/cookie names are
// prefixed before sanitization per C1, so theirs always differ).
func addParameter(doc *Document, opNode *yaml.Node, param *v3.Parameter, properties map[string]any, required *[]string, mappings map[string]core.ParameterMapping, opts CompileOptions) {
	loc := core.ParameterLocation(param.In)
	var mcpName string
	switch loc {
	case core.LocationHeader:
		mcpName = sanitize.Prefixed("header_", param.Name)
	case core.LocationCookie:
		mcpName = sanitize.Prefixed("cookie_", param.Name)
	default:
		mcpName = sanitize.Name(param.Name)
	}

	propSchema := jsonschema.Translate(param.Schema)
	if opts.SkipParameterDescriptions {
		delete(propSchema, "description")
	} else {
		resolvedDescription, _ := propSchema["description"].(string)
		schemaNode := refresolve.ParameterSchemaNode(opNode, param.Name)
		desc := refDescription(doc.Resolver, schemaNode, resolvedDescription, param.Description)
		if desc != "" {
			propSchema["description"] = desc
		} else {
			delete(propSchema, "description")
		}
	}

	explode, hasExplode := true, false
	if param.Explode != nil {
		explode, hasExplode = *param.Explode, true
	} else {
		explode, hasExplode = jsonschema.DefaultExplode(param.Style), true
	}

	jsonschema.Annotate(propSchema, jsonschema.ParamMeta{
		Location:   jsonschema.Location(loc),
		Required:   param.Required != nil && *param.Required,
		Explode:    explode,
		HasExplode: hasExplode && loc == core.LocationQuery,
	})
	if mcpName != param.Name {
		jsonschema.AnnotateOriginalName(propSchema, param.Name)
	}
	properties[mcpName] = propSchema

	isRequired := loc == core.LocationPath || (param.Required != nil && *param.Required)
	if isRequired {
		*required = append(*required, mcpName)
	}

	mappings[mcpName] = core.ParameterMapping{
		OriginalName: param.Name,
		Location:     loc,
		Explode:      explode,
	}
}

func determineContentType(operation *v3.Operation, registry *ContentTypeRegistry) (string, *v3.MediaType) {
	if operation.RequestBody == nil || operation.RequestBody.Content == nil || operation.RequestBody.Content.Len() == 0 {
		return "", nil
	}
	for _, ct := range registry.PriorityContentTypes() {
		if media, ok := operation.RequestBody.Content.Get(ct); ok {
			return ct, media
		}
	}
	first := operation.RequestBody.Content.First()
	return first.Key(), first.Value()
}

// addRequestBody compiles an operation's request body into the single
// reserved "request_body" input-schema property: the whole body schema
// goes in verbatim, rather than flattened field-by-field, so a caller
// passes one request_body argument and its value travels to
// ExtractedParameters.Body["request_body"] unchanged. This mirrors the
// original generator's tool_generator.rs, which inserts exactly one
// "request_body" property carrying the converted body schema.
func addRequestBody(doc *Document, opNode *yaml.Node, properties map[string]any, required *[]string, mappings map[string]core.ParameterMapping, media *v3.MediaType, contentType string, registry *ContentTypeRegistry, opts CompileOptions, bodyRequired bool) {
	bodySchema := registry.Get(contentType).ExtractSchema(media)
	if bodySchema == nil {
		bodySchema = map[string]any{"type": "object"}
	}

	if opts.SkipParameterDescriptions {
		delete(bodySchema, "description")
	} else {
		resolvedDescription, _ := bodySchema["description"].(string)
		schemaNode := refresolve.RequestBodySchemaNode(opNode, contentType)
		desc := refDescription(doc.Resolver, schemaNode, resolvedDescription, "Request body data")
		if desc != "" {
			bodySchema["description"] = desc
		} else {
			delete(bodySchema, "description")
		}
	}

	jsonschema.Annotate(bodySchema, jsonschema.ParamMeta{
		Location:    jsonschema.LocationBody,
		ContentType: contentType,
	})
	properties["request_body"] = bodySchema
	if bodyRequired {
		*required = append(*required, "request_body")
	}
	mappings["request_body"] = core.ParameterMapping{OriginalName: "request_body", Location: core.LocationBody}
}

// annotationsFor derives the MCP hints fixed by RFC 9110 semantics
// (spec.md's full verb table), unlike the read-only/idempotent-only
// subset the teacher's original generalization covered.
func annotationsFor(method, title string) core.McpToolAnnotation {
	a := core.McpToolAnnotation{Title: title, OpenWorldHint: boolPtr(true)}
	switch method {
	case "GET", "HEAD", "OPTIONS":
		a.ReadOnlyHint = boolPtr(true)
		a.DestructiveHint = boolPtr(false)
		a.IdempotentHint = boolPtr(true)
	case "POST":
		a.ReadOnlyHint = boolPtr(false)
		a.DestructiveHint = boolPtr(false)
		a.IdempotentHint = boolPtr(false)
	case "PUT":
		a.ReadOnlyHint = boolPtr(false)
		a.DestructiveHint = boolPtr(true)
		a.IdempotentHint = boolPtr(true)
	case "PATCH":
		a.ReadOnlyHint = boolPtr(false)
		a.DestructiveHint = boolPtr(true)
		a.IdempotentHint = boolPtr(false)
	case "DELETE":
		a.ReadOnlyHint = boolPtr(false)
		a.DestructiveHint = boolPtr(true)
		a.IdempotentHint = boolPtr(true)
	}
	return a
}

func boolPtr(b bool) *bool { return &b }

// errorEnvelopeSchema is the fixed, inlined schema describing the typed
// error taxonomy from the design's error model (C8), embedded as the
// error branch of every wrapped output schema.
func errorEnvelopeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind":    map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
			"details": map[string]any{"type": "object"},
		},
		"required": []any{"kind", "message"},
	}
}

// outputSchema selects the first response among 200/201/202/203/2XX/default
// (skipping 204, which has no body) and wraps it per the spec's fixed
// envelope {status, body:oneOf[success, error]}.
func outputSchema(operation *v3.Operation) map[string]any {
	if operation.Responses == nil || operation.Responses.Codes == nil {
		return nil
	}
	var chosen *v3.Response
	for _, code := range []string{"200", "201", "202", "203"} {
		if r, ok := operation.Responses.Codes.Get(code); ok {
			chosen = r
			break
		}
	}
	if chosen == nil {
		for pair := operation.Responses.Codes.First(); pair != nil; pair = pair.Next() {
			code := pair.Key()
			if code == "204" {
				continue
			}
			if strings.HasPrefix(code, "2") {
				chosen = pair.Value()
				break
			}
		}
	}
	if chosen == nil && operation.Responses.Default != nil {
		chosen = operation.Responses.Default
	}
	if chosen == nil || chosen.Content == nil || chosen.Content.Len() == 0 {
		return nil
	}

	var successSchema map[string]any
	for _, ct := range []string{"application/json", "application/hal+json"} {
		if media, ok := chosen.Content.Get(ct); ok && media.Schema != nil {
			successSchema = jsonschema.Translate(media.Schema)
			break
		}
	}
	if successSchema == nil {
		first := chosen.Content.First()
		if first.Value().Schema != nil {
			successSchema = jsonschema.Translate(first.Value().Schema)
		}
	}
	if successSchema == nil {
		return nil
	}

	return map[string]any{
		"type":                 "object",
		"required":             []any{"status", "body"},
		"additionalProperties": false,
		"properties": map[string]any{
			"status": map[string]any{"type": "integer", "minimum": 100, "maximum": 599},
			"body":   map[string]any{"oneOf": []any{successSchema, errorEnvelopeSchema()}},
		},
	}
}

func securitySchemes(operation *v3.Operation) []string {
	if len(operation.Security) == 0 {
		return nil
	}
	var names []string
	for _, req := range operation.Security {
		if req == nil || req.Requirements == nil {
			continue
		}
		for pair := req.Requirements.First(); pair != nil; pair = pair.Next() {
			names = append(names, pair.Key())
		}
	}
	sort.Strings(names)
	return names
}

// composeDescription derives an operation's tool description. Operations
// themselves are never $ref'd in OpenAPI, so there is no ref-sibling
// summary/description to prefer here — that precedence only applies to
// the schema nodes addParameter/addRequestBody resolve.
func composeDescription(operation *v3.Operation, method, path string) string {
	description := operation.Description
	if description == "" {
		description = operation.Summary
	}
	if description == "" {
		description = fmt.Sprintf("%s %s", method, path)
	}
	description += fmt.Sprintf("\n\nEndpoint: %s %s", method, path)
	return description
}

// refDescription applies the spec's description-precedence rule
// (ref.description > ref.summary > resolved schema description >
// fallback) to schemaNode, which may itself be a $ref sibling object.
// When resolver or schemaNode is nil, or schemaNode carries no $ref, it
// falls straight back to resolvedDescription then fallback.
func refDescription(resolver *refresolve.Resolver, schemaNode *yaml.Node, resolvedDescription, fallback string) string {
	if resolver == nil || schemaNode == nil {
		if resolvedDescription != "" {
			return resolvedDescription
		}
		return fallback
	}
	_, meta, err := resolver.ResolveNode(schemaNode, nil)
	if err != nil {
		if resolvedDescription != "" {
			return resolvedDescription
		}
		return fallback
	}
	return refresolve.DescriptionFor(meta, resolvedDescription, fallback)
}
