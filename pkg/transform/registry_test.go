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

import "testing"

func TestResolve_PerToolOverridesGlobal(t *testing.T) {
	r := NewRegistry()
	r.Register(Identity{})
	r.Register(RedactFields{TransformerName: "redact-secret", Fields: []string{"secret"}})
	r.SetGlobal("identity")
	r.BindTool("getUser", "redact-secret")

	if got := r.Resolve("getUser"); got == nil || got.Name() != "redact-secret" {
		t.Fatalf("expected per-tool binding redact-secret, got %v", got)
	}
	if got := r.Resolve("listUsers"); got == nil || got.Name() != "identity" {
		t.Fatalf("expected global binding identity, got %v", got)
	}
	if got := r.Resolve("unknownTool"); got == nil || got.Name() != "identity" {
		t.Fatalf("expected fallback to global for unbound tool, got %v", got)
	}
}

func TestResolve_NoBindings(t *testing.T) {
	r := NewRegistry()
	if got := r.Resolve("anything"); got != nil {
		t.Fatalf("expected nil transformer with no bindings, got %v", got)
	}
}

func TestRedactFields_TransformResponse(t *testing.T) {
	rt := RedactFields{Fields: []string{"password", "internal_id"}}
	in := map[string]any{"name": "alice", "password": "hunter2", "internal_id": 42}
	out := rt.TransformResponse(in).(map[string]any)

	if _, present := out["password"]; present {
		t.Error("expected password redacted")
	}
	if _, present := out["internal_id"]; present {
		t.Error("expected internal_id redacted")
	}
	if out["name"] != "alice" {
		t.Errorf("expected name preserved, got %v", out["name"])
	}
	if _, present := in["password"]; !present {
		t.Error("TransformResponse must not mutate the input map")
	}
}

func TestApplyResponse_NilTransformerIsNoop(t *testing.T) {
	v := ApplyResponse(nil, map[string]any{"a": 1})
	m := v.(map[string]any)
	if m["a"] != 1 {
		t.Errorf("expected passthrough, got %v", v)
	}
}
