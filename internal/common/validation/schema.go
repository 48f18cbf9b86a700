package validation

import (
	"fmt"
	"strings"
	"time"

	"registration-workers/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// ActorSchema is the schema fragment for the acting user carried in job
// variables.
const ActorSchema = `{
	"type": "object",
	"required": ["id", "role"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"role": {"type": "string", "enum": ["owner", "dealing_assistant", "district_tourism_officer", "state_admin"]},
		"district": {"type": "string"}
	}
}`

// Schema is a compiled JSON schema used to validate job variables before
// they reach the workflow core.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Compile parses a JSON schema document.
func Compile(name, schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is Compile for package-level schema literals.
func MustCompile(name, schemaJSON string) *Schema {
	s, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Check validates an arbitrary Go value (struct, map) against the schema.
func (s *Schema) Check(document interface{}) (*ValidationResult, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", s.name, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	return out, nil
}

// Validate returns PAYLOAD_VALIDATION_FAILED listing every violation.
func (s *Schema) Validate(document interface{}) error {
	res, err := s.Check(document)
	if err != nil {
		return errors.NewPayloadValidationError(err.Error())
	}
	if res.Valid {
		return nil
	}
	return errors.NewPayloadValidationError(strings.Join(res.GetErrorMessages(), "; ")).
		WithMetadata("fields", res.fields())
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) fields() []string {
	out := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		out = append(out, err.Field)
	}
	return out
}

// ParseDate accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date.
func ParseDate(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, errors.NewPayloadValidationError(fmt.Sprintf("%s: %q is not a date", field, value)).
		WithMetadata("fields", []string{field})
}
