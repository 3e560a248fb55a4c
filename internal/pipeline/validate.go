package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/funddocs/funds-tracker/internal/common"
)

// ValidateAgainstSchema validates candidate JSON against the raw schema
// text, collecting every violation instead of stopping at the first.
func ValidateAgainstSchema(schemaRaw, candidate []byte) ([]string, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaRaw)); err != nil {
		return nil, common.WrapError(common.ErrConfig, fmt.Sprintf("add schema: %v", err))
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, common.WrapError(common.ErrConfig, fmt.Sprintf("compile schema: %v", err))
	}

	var v any
	if err := json.Unmarshal(candidate, &v); err != nil {
		return nil, fmt.Errorf("%w: unmarshal candidate: %v", common.ErrInvalidModelOutput, err)
	}

	err = schema.Validate(v)
	if err == nil {
		return nil, nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, fmt.Errorf("validate: %w", err)
	}

	violations := collectViolations(ve)
	return violations, fmt.Errorf("%w: %s", common.ErrSchemaValidation, strings.Join(violations, "; "))
}

// collectViolations flattens the validation error tree into one message per
// leaf violation, using the draft "basic" output format.
func collectViolations(ve *jsonschema.ValidationError) []string {
	var out []string
	for _, unit := range ve.BasicOutput().Errors {
		// The root unit repeats the summary; keep only leaf units that
		// carry an instance location.
		if unit.KeywordLocation == "" {
			continue
		}
		loc := unit.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, fmt.Sprintf("%s: %s", loc, unit.Error))
	}
	if len(out) == 0 {
		out = append(out, ve.Message)
	}
	return out
}
