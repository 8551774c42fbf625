// internal/workers/conversation/process-message/schema.go
package processmessage

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

func inputSchema(maxMessageLength int) map[string]interface{} {
	id := map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 256}
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"userId", "conversationId", "message"},
		"properties": map[string]interface{}{
			"userId":         id,
			"conversationId": id,
			"message":        map[string]interface{}{"type": "string", "maxLength": maxMessageLength},
		},
	}
}

// validateVariables checks raw job variables before they are decoded.
func validateVariables(variables string, maxMessageLength int) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(inputSchema(maxMessageLength)),
		gojsonschema.NewStringLoader(variables),
	)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}
