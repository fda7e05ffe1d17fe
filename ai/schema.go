package ai

import (
	"fmt"
	"strings"

	"hypoforge/internal/errors"

	"github.com/xeipuuv/gojsonschema"
)

// HypothesesSchemaName is the schema name sent with the strict response format
const HypothesesSchemaName = "hypotheses"

// HypothesesSchema is an object with a single "hypotheses" array of
// {hypothesis, benefit} records. No other properties are allowed anywhere.
func HypothesesSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"hypotheses"},
		"additionalProperties": false,
		"properties": map[string]any{
			"hypotheses": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"required":             []any{"hypothesis", "benefit"},
					"additionalProperties": false,
					"properties": map[string]any{
						"hypothesis": map[string]any{"type": "string"},
						"benefit":    map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

// HypothesesResponseFormat requests strict schema enforcement from the model
func HypothesesResponseFormat() *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchemaFormat{
			Name:   HypothesesSchemaName,
			Strict: true,
			Schema: HypothesesSchema(),
		},
	}
}

// ValidateHypothesesDocument checks a complete model response against
// HypothesesSchema. Any mismatch, including invalid JSON, is a SCHEMA_VIOLATION.
func ValidateHypothesesDocument(doc string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(HypothesesSchema()),
		gojsonschema.NewStringLoader(doc),
	)
	if err != nil {
		return errors.WithCode(errors.CodeSchemaViolation,
			fmt.Errorf("response is not valid JSON: %w", err))
	}
	if result.Valid() {
		return nil
	}

	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return errors.SchemaViolation("response failed schema validation: " + strings.Join(details, "; "))
}
