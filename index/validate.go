package index

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FieldError represents a validation failure at one location of a response.
type FieldError struct {
	Field   string // JSON pointer into the document (e.g., "/files/0/url")
	Message string
}

func (e *FieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []*FieldError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&b, "\n  - %s", err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying errors for errors.Is/As compatibility.
func (e *ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}

// Add appends a validation error.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &FieldError{Field: field, Message: message})
}

// HasErrors returns true if any errors were collected.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ToError returns nil if no errors, otherwise returns self.
func (e *ValidationErrors) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Validator checks JSON simple API responses against the project page
// schema. The schema is compiled once on first use.
type Validator struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// NewValidator creates a validator for JSON simple API project pages.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) compile() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(projectPageSchema))
		if err != nil {
			v.err = fmt.Errorf("loading project page schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(projectPageSchemaURL, doc); err != nil {
			v.err = fmt.Errorf("loading project page schema: %w", err)
			return
		}
		v.schema, v.err = c.Compile(projectPageSchemaURL)
	})
	return v.schema, v.err
}

// ValidateProjectPage validates raw JSON bytes as a project page. The
// returned error is a *ValidationErrors listing every violation.
func (v *Validator) ValidateProjectPage(data []byte) error {
	sch, err := v.compile()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &FieldError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}

	var errs ValidationErrors
	collectLeaves(ve.BasicOutput(), &errs)
	if !errs.HasErrors() {
		errs.Add("", ve.Error())
	}
	return errs.ToError()
}

func collectLeaves(unit *jsonschema.OutputUnit, errs *ValidationErrors) {
	if unit == nil {
		return
	}
	if len(unit.Errors) == 0 {
		if unit.Error != nil {
			field := unit.InstanceLocation
			if field == "" {
				field = "/"
			}
			errs.Add(field, unit.Error.String())
		}
		return
	}
	for i := range unit.Errors {
		collectLeaves(&unit.Errors[i], errs)
	}
}
