// Package validation provides the fluent request-validation helper
// used by internal/httpapi to build the validation_error details map.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validator accumulates field-level validation errors.
type Validator struct {
	errors map[string]string
	order  []string
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{errors: make(map[string]string)}
}

// HasErrors reports whether any rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Details returns the accumulated field -> message map, suitable for
// response.APIError.Details.
func (v *Validator) Details() map[string]string {
	return v.errors
}

func (v *Validator) fail(field, message string) {
	if _, exists := v.errors[field]; !exists {
		v.order = append(v.order, field)
	}
	v.errors[field] = message
}

// Required fails if value is empty or whitespace-only.
func (v *Validator) Required(value, field string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.fail(field, fmt.Sprintf("%s is required", field))
	}
	return v
}

// UUID fails if value is not a canonical 36-character UUID.
func (v *Validator) UUID(value, field string) *Validator {
	if !uuidPattern.MatchString(value) {
		v.fail(field, fmt.Sprintf("%s must be a valid UUID", field))
	}
	return v
}

// Range fails if value falls outside [min, max].
func (v *Validator) Range(value, min, max int, field string) *Validator {
	if value < min || value > max {
		v.fail(field, fmt.Sprintf("%s must be between %d and %d", field, min, max))
	}
	return v
}

// OneOf fails if value is not one of allowed.
func (v *Validator) OneOf(value string, allowed []string, field string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.fail(field, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
	return v
}
