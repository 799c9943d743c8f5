package schema

import "fmt"

// MissingRequiredFieldError reports a required input that is absent after
// defaults were applied.
type MissingRequiredFieldError struct {
	Kind  string
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("%s: required property %q is missing", e.Kind, e.Field)
}

// ValidationError reports a value that has the right type but violates a
// declared constraint such as a range or item count.
type ValidationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: property %q is invalid: %s", e.Kind, e.Field, e.Reason)
}
