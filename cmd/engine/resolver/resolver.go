package resolver

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// templatePattern matches {{nodeId.path}} references
var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolver substitutes template references in node configs using the
// per-execution context. It is pure: inputs are never mutated.
type Resolver struct{}

// New creates a template resolver
func New() *Resolver {
	return &Resolver{}
}

// Resolve walks an arbitrary JSON-like value and substitutes every
// {{nodeId.path}} reference found in string leaves. References that
// cannot be resolved are left in place.
func (r *Resolver) Resolve(value any, context map[string]any) any {
	switch v := value.(type) {
	case string:
		return r.resolveString(v, context)
	case map[string]any:
		return r.resolveMap(v, context)
	case []any:
		return r.resolveArray(v, context)
	default:
		// Primitives (numbers, bools, nil) pass through
		return value
	}
}

// ResolveMap resolves all values in a node's data map
func (r *Resolver) ResolveMap(data map[string]any, context map[string]any) map[string]any {
	return r.resolveMap(data, context)
}

func (r *Resolver) resolveMap(m map[string]any, context map[string]any) map[string]any {
	resolved := make(map[string]any, len(m))
	for key, value := range m {
		resolved[key] = r.Resolve(value, context)
	}
	return resolved
}

func (r *Resolver) resolveArray(arr []any, context map[string]any) []any {
	resolved := make([]any, len(arr))
	for i, value := range arr {
		resolved[i] = r.Resolve(value, context)
	}
	return resolved
}

func (r *Resolver) resolveString(str string, context map[string]any) string {
	return templatePattern.ReplaceAllStringFunc(str, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])

		substituted, ok := lookup(path, context)
		if !ok {
			// Leave the literal reference untouched
			return match
		}
		return substituted
	})
}

// lookup descends into the context by dot-separated path. The first
// segment addresses a node's output; the rest descend by key.
func lookup(path string, context map[string]any) (string, bool) {
	parts := strings.SplitN(path, ".", 2)
	nodeID := parts[0]

	output, exists := context[nodeID]
	if !exists {
		return "", false
	}

	if len(parts) == 1 {
		return stringify(output), true
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return "", false
	}

	result := gjson.GetBytes(raw, parts[1])
	if !result.Exists() {
		return "", false
	}

	if result.Type == gjson.String {
		return result.String(), true
	}
	return result.Raw, true
}

// stringify renders a resolved value for substitution: strings pass
// through, everything else becomes its JSON serialization.
func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(raw)
}
