package validator

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

var (
	shared     *Validator
	sharedOnce sync.Once
)

// New returns the process-wide Validator. The underlying library caches
// struct metadata, so a single instance is reused.
func New() *Validator {
	sharedOnce.Do(func() {
		shared = &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
	})
	return shared
}

// ValidateStruct validates a struct based on its tags.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateVar validates a single value against a tag such as "required,url".
func (v *Validator) ValidateVar(field any, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
