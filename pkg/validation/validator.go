package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator configures the validator used across the module.
// - Uses struct field names as reported (no binding engine here).
// - Registers the notblank tag for required, non-whitespace strings.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.String {
			return !f.IsZero()
		}
		return strings.TrimSpace(f.String()) != ""
	})
	return v
}

// Struct validates v against its validate tags.
func Struct(v any) error {
	return validate.Struct(v)
}

// Describe converts a validation error into a short, stable message listing
// the failing fields, suitable for wrapping into a sentinel error.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s %s", fe.Field(), messageFor(fe)))
	}
	return strings.Join(parts, "; ")
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed validation " + fe.Tag()
	}
}
