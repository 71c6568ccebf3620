package scoring

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed ats_schema.json
var atsSchema []byte

var (
	schemaOnce sync.Once
	compiled   *gojsonschema.Schema
	compileErr error
)

// FieldError is a single schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every schema violation of a model response.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "response does not match schema: " + strings.Join(parts, "; ")
}

// Schema returns a fresh copy of the response schema as a generic JSON value.
func Schema() map[string]any {
	var schema map[string]any
	if err := json.Unmarshal(atsSchema, &schema); err != nil {
		panic(fmt.Sprintf("embedded response schema is invalid: %v", err))
	}
	return schema
}

// Validate checks doc against the response schema.
func Validate(doc []byte) error {
	schemaOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(atsSchema))
	})
	if compileErr != nil {
		return fmt.Errorf("load response schema: %w", compileErr)
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("response is not valid json: %w", err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{}
	for _, e := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{Field: e.Field(), Message: e.Description()})
	}
	return ve
}
