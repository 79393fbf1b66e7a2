package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidDocument = errors.New("invalid document")

// ValidationError lists the schema violations of a document.
type ValidationError struct {
	Result *gojsonschema.Result
}

func (e *ValidationError) Error() string {
	details := make([]string, 0, len(e.Result.Errors()))
	for _, desc := range e.Result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Sprintf("%s: %s", ErrInvalidDocument, strings.Join(details, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDocument
}

type Schema struct {
	schema *gojsonschema.Schema
}

// Validate checks the raw JSON document against the schema.
func (s *Schema) Validate(data []byte) error {
	res, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if res.Valid() {
		return nil
	}

	return &ValidationError{Result: res}
}

//go:embed start-request.json
var startRequest []byte

// NewStartRequestSchema returns the schema of slot start requests.
func NewStartRequestSchema() (*Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(startRequest))
	if err != nil {
		return nil, err
	}

	return &Schema{schema: schema}, nil
}
