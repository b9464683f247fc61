package registry

import (
	"fmt"

	"github.com/nocturnelabs/vigil/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateInput checks a step's resolved input data against the task's
// declared input schema before dispatch.
func ValidateInput(def *models.TaskDefinition, input map[string]any) error {
	schema := def.InputSchema

	if len(schema.Required) == 0 && len(schema.Types) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema.JSONSchema()),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return fmt.Errorf("schema validation for task %q: %w", def.ID, err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("task %q input invalid: %s", def.ID, errs[0].String())
		}

		return fmt.Errorf("task %q input invalid", def.ID)
	}

	return nil
}
