package scheduler

import (
	"fmt"

	"github.com/flowgrid/flowgrid/common/models"
)

// requiredFields lists the kind-specific data fields checked before any
// handler runs. ai-chat is special-cased: either field suffices.
var requiredFields = map[string][]string{
	models.NodeTypeHTTPRequest: {"url"},
	models.NodeTypeCode:        {"code"},
	models.NodeTypeDatabase:    {"connectionString", "query"},
	models.NodeTypeEmail:       {"to", "subject", "body"},
}

// validateWorkflow performs the static per-node checks. The returned
// error message names the offending node and field, and becomes the
// execution's error verbatim.
func validateWorkflow(wf *models.Workflow) error {
	for _, node := range wf.Nodes {
		if node.Type == models.NodeTypeAIChat {
			if isMissing(node.Data, "prompt") && isMissing(node.Data, "systemPrompt") {
				return fmt.Errorf("Validation error: [%s] Missing required field: prompt", node.ID)
			}
			continue
		}

		for _, field := range requiredFields[node.Type] {
			if isMissing(node.Data, field) {
				return fmt.Errorf("Validation error: [%s] Missing required field: %s", node.ID, field)
			}
		}
	}
	return nil
}

func isMissing(data map[string]any, field string) bool {
	value, ok := data[field]
	if !ok || value == nil {
		return true
	}
	if s, isString := value.(string); isString && s == "" {
		return true
	}
	return false
}
