package condition

import (
	"testing"
)

func TestEvaluate(t *testing.T) {
	e := NewEvaluator()

	output := map[string]any{
		"ok":         true,
		"statusCode": 200,
		"body":       map[string]any{"count": 5},
	}
	ctx := map[string]any{"A": output}

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{"empty expression passes", "", true, false},
		{"whitespace expression passes", "   ", true, false},
		{"boolean field", "output.ok", true, false},
		{"comparison", "output.statusCode == 200", true, false},
		{"nested field", "output.body.count > 3", true, false},
		{"false result", "output.statusCode >= 500", false, false},
		{"jsonpath shorthand", "$.ok", true, false},
		{"context access", "ctx.A.statusCode == 200", true, false},
		{"non-boolean result", "output.statusCode", false, true},
		{"invalid syntax", "output.ok ==", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, output, ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_CachesCompiledPrograms(t *testing.T) {
	e := NewEvaluator()

	output := map[string]any{"ok": true}

	for i := 0; i < 3; i++ {
		if _, err := e.Evaluate("output.ok", output, nil); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}

	if got := e.CacheSize(); got != 1 {
		t.Errorf("expected 1 cached program, got %d", got)
	}
}
