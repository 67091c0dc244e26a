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

package sanitize

import (
	"regexp"
	"strings"
	"testing"
)

var legalKey = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

func TestName_Table(t *testing.T) {
	cases := map[string]string{
		"petId":           "petId",
		"pet-id":          "pet-id",
		"pet id":          "pet_id",
		"pet__id":         "pet_id",
		"pet___id__":      "pet_id",
		"123abc":          "param_123abc",
		"":                "param",
		"!!!":              "param",
		"a.b-c_d":         "a.b-c_d",
	}
	for in, want := range cases {
		got := Name(in)
		if got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestName_Invariants(t *testing.T) {
	inputs := []string{
		"petId", "pet-id", "pet id", "", "123", "___", "a/b/c",
		strings.Repeat("x", 200), strings.Repeat("-", 80) + "end",
	}
	for _, in := range inputs {
		out := Name(in)
		if !legalKey.MatchString(out) {
			t.Errorf("Name(%q) = %q does not match key regex", in, out)
		}
		if len(out) > 64 {
			t.Errorf("Name(%q) = %q longer than 64", in, out)
		}
		if strings.HasSuffix(out, "_") {
			t.Errorf("Name(%q) = %q ends with _", in, out)
		}
		if strings.Contains(out, "__") {
			t.Errorf("Name(%q) = %q contains __", in, out)
		}
		if out[0] >= '0' && out[0] <= '9' {
			t.Errorf("Name(%q) = %q starts with a digit", in, out)
		}
		if Name(out) != out {
			t.Errorf("Name is not idempotent for %q: Name(out)=%q", in, Name(out))
		}
	}
}

func TestChanged(t *testing.T) {
	if Changed("petId") {
		t.Error("petId should be unchanged")
	}
	if !Changed("pet id") {
		t.Error("pet id should be reported as changed")
	}
}

func TestPrefixed(t *testing.T) {
	if got := Prefixed("header_", "X-Request-Id"); got != "header_X-Request-Id" {
		t.Errorf("Prefixed = %q", got)
	}
}
