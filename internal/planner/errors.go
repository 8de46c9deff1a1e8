package planner

import (
	"fmt"

	"github.com/rahul/autopilot/internal/catalog"
)

// ExtractionError means the input did not contain a value the template needs.
// It is recoverable: ask the user to rephrase and build a new plan.
type ExtractionError struct {
	Placeholder string
	Kind        catalog.ValueKind // empty when a step references an undeclared placeholder
	TemplateID  string
	StepOrder   int
}

func (e *ExtractionError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("template %s: no %s found in input for {%s}", e.TemplateID, e.Kind, e.Placeholder)
	}
	return fmt.Sprintf("template %s: step %d references {%s} but no value was extracted", e.TemplateID, e.StepOrder, e.Placeholder)
}
