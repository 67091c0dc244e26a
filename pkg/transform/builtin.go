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

package transform

// Identity is a no-op ResponseTransformer, useful as an explicit
// override binding when a tool should opt out of a global transformer.
type Identity struct{}

func (Identity) Name() string                                    { return "identity" }
func (Identity) TransformSchema(schema map[string]any) map[string]any { return schema }
func (Identity) TransformResponse(value any) any                 { return value }

// RedactFields removes a fixed set of top-level object keys from both
// the advertised output schema and every response body, for tools whose
// upstream responses carry fields (internal IDs, secrets) that should
// never reach the MCP client.
type RedactFields struct {
	TransformerName string
	Fields          []string
}

func (r RedactFields) Name() string {
	if r.TransformerName == "" {
		return "redact-fields"
	}
	return r.TransformerName
}

func (r RedactFields) TransformSchema(schema map[string]any) map[string]any {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return schema
	}
	for _, f := range r.Fields {
		delete(props, f)
	}
	return schema
}

func (r RedactFields) TransformResponse(value any) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, f := range r.Fields {
		delete(out, f)
	}
	return out
}
