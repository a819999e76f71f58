// Package sanitize provides custom validation rules for request bodies.
package sanitize

import (
	"regexp"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/guardrail/internal/errors"
	"github.com/allisson/guardrail/internal/pattern"
)

// Clean returns a rule that rejects values matching the category's patterns.
func Clean(c pattern.Category) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return validation.NewError("validation_clean_type", "must be a string")
		}
		if s == "" {
			return nil // Let Required handle empty strings
		}
		if !ValidateInput(s, c) {
			return validation.NewError(
				"validation_injection_"+string(c),
				"contains disallowed content",
			)
		}
		return nil
	})
}

// StringRules builds the standard rule set for an untrusted string field:
// length bounds, optional shape pattern, and pattern-library cleanliness.
func StringRules(minLen, maxLen int, shape *regexp.Regexp, c pattern.Category) []validation.Rule {
	rules := []validation.Rule{
		validation.Length(minLen, maxLen),
	}
	if shape != nil {
		rules = append(rules, validation.Match(shape))
	}
	rules = append(rules, Clean(c))
	return rules
}

// ValidateField validates one named value and returns field errors, empty when valid.
func ValidateField(field string, value any, rules ...validation.Rule) []apperrors.FieldError {
	err := validation.Validate(value, rules...)
	if err == nil {
		return nil
	}
	return fieldErrorsFrom(field, err)
}

// ValidateMap validates a flat map of field name to value against per-field
// rules. A failure yields the full structured list of field errors wrapped in
// a ValidationError, never a single opaque error.
func ValidateMap(values map[string]any, rules map[string][]validation.Rule) error {
	var fields []apperrors.FieldError
	for name, fieldRules := range rules {
		fields = append(fields, ValidateField(name, values[name], fieldRules...)...)
	}
	if len(fields) == 0 {
		return nil
	}
	return apperrors.NewValidationError(fields...)
}

// fieldErrorsFrom flattens a jellydator validation error into FieldError values.
func fieldErrorsFrom(field string, err error) []apperrors.FieldError {
	switch e := err.(type) {
	case validation.Errors:
		var out []apperrors.FieldError
		for sub, subErr := range e {
			out = append(out, fieldErrorsFrom(field+"."+sub, subErr)...)
		}
		return out
	case validation.Error:
		return []apperrors.FieldError{{Field: field, Message: e.Error(), Code: e.Code()}}
	default:
		return []apperrors.FieldError{{Field: field, Message: err.Error(), Code: "validation_failed"}}
	}
}
