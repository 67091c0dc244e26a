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

package authzpolicy

import (
	"net/http"
	"testing"
)

func TestParseMode(t *testing.T) {
	valid := []string{"compliant", "passthrough-warn", "passthrough-silent"}
	for _, v := range valid {
		if _, err := ParseMode(v); err != nil {
			t.Errorf("ParseMode(%q) returned error: %v", v, err)
		}
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Error("ParseMode(\"bogus\") expected error, got nil")
	}
}

func TestApply_Compliant_StripsHeader(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer caller-token")

	p := New(Compliant, nil)
	p.Apply(req, "Bearer caller-token", "getThing", false, true)

	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("expected Authorization header stripped in compliant mode, got %q", got)
	}
}

func TestApply_PassthroughWarn_Forwards(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)

	p := New(PassthroughWarn, nil)
	p.Apply(req, "Bearer caller-token", "getThing", false, false)

	if got := req.Header.Get("Authorization"); got != "Bearer caller-token" {
		t.Errorf("expected Authorization forwarded in passthrough-warn mode, got %q", got)
	}
}

func TestApply_PassthroughSilent_Forwards(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)

	p := New(PassthroughSilent, nil)
	p.Apply(req, "Bearer caller-token", "getThing", false, false)

	if got := req.Header.Get("Authorization"); got != "Bearer caller-token" {
		t.Errorf("expected Authorization forwarded in passthrough-silent mode, got %q", got)
	}
}

func TestApply_NoCallerAuth_NeverSetsHeader(t *testing.T) {
	for _, mode := range []Mode{Compliant, PassthroughWarn, PassthroughSilent} {
		req, _ := http.NewRequest("GET", "http://example.com", nil)
		p := New(mode, nil)
		p.Apply(req, "", "getThing", true, false)
		if got := req.Header.Get("Authorization"); got != "" {
			t.Errorf("mode %s: expected no Authorization header with no caller auth, got %q", mode, got)
		}
	}
}
