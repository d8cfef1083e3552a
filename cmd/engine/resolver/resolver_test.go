package resolver

import (
	"reflect"
	"testing"
)

func testContext() map[string]any {
	return map[string]any{
		"A": map[string]any{
			"n": float64(3),
			"user": map[string]any{
				"name":  "ada",
				"roles": []any{"admin", "dev"},
			},
		},
		"B": map[string]any{"v": float64(6)},
		"C": "plain-output",
	}
}

func TestResolve_Strings(t *testing.T) {
	r := New()
	ctx := testContext()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple path", "value is {{A.n}}", "value is 3"},
		{"nested path", "hello {{A.user.name}}", "hello ada"},
		{"multiple refs", "https://example.test/{{B.v}}/{{A.n}}", "https://example.test/6/3"},
		{"string output node", "got {{C}}", "got plain-output"},
		{"non-string leaf serialized", "roles: {{A.user.roles}}", `roles: ["admin","dev"]`},
		{"whole object serialized", "{{B}}", `{"v":6}`},
		{"unknown node left literal", "x {{Z.v}} y", "x {{Z.v}} y"},
		{"unknown key left literal", "x {{A.missing}} y", "x {{A.missing}} y"},
		{"descend into scalar left literal", "x {{A.n.deeper}} y", "x {{A.n.deeper}} y"},
		{"no templates", "untouched", "untouched"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.input, ctx)
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve_Structural(t *testing.T) {
	r := New()
	ctx := testContext()

	input := map[string]any{
		"url":    "https://example.test/{{B.v}}",
		"count":  float64(42),
		"flag":   true,
		"nested": map[string]any{"who": "{{A.user.name}}"},
		"list":   []any{"{{A.n}}", float64(7), "static"},
	}

	got := r.ResolveMap(input, ctx)

	want := map[string]any{
		"url":    "https://example.test/6",
		"count":  float64(42),
		"flag":   true,
		"nested": map[string]any{"who": "ada"},
		"list":   []any{"3", float64(7), "static"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveMap mismatch:\ngot  %#v\nwant %#v", got, want)
	}
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	r := New()
	ctx := testContext()

	input := map[string]any{
		"url": "{{B.v}}",
		"sub": map[string]any{"k": "{{A.n}}"},
	}

	r.ResolveMap(input, ctx)

	if input["url"] != "{{B.v}}" {
		t.Errorf("input map was mutated: %v", input["url"])
	}
	if input["sub"].(map[string]any)["k"] != "{{A.n}}" {
		t.Errorf("nested input map was mutated")
	}
}

func TestResolve_Idempotent(t *testing.T) {
	r := New()
	ctx := testContext()

	once := r.Resolve("https://example.test/{{B.v}}/{{A.n}}", ctx)
	twice := r.Resolve(once, ctx)

	if once != twice {
		t.Errorf("resolving a resolved value changed it: %q vs %q", once, twice)
	}
}
