package utils

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json field names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return IsValidEntityID(fl.Field().String())
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})

	return v
}

// IsValidEntityID reports whether s can be used as a node or edge id. Ids are
// client-generated and opaque; they only must be usable as a storage key part.
func IsValidEntityID(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	return !strings.ContainsAny(s, "/#?\x00") && strings.TrimSpace(s) == s
}

// ValidateStruct validates a struct based on its validation tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError formats validation errors into a ValidationError
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		messages := make([]string, 0, len(validationErrors))
		fields := make(map[string]interface{}, len(validationErrors))
		for _, e := range validationErrors {
			msg := formatFieldError(e)
			messages = append(messages, msg)
			fields[e.Field()] = msg
		}
		return pkgerrors.NewValidationError(strings.Join(messages, "; ")).
			WithDetails(map[string]interface{}{"fields": fields})
	}
	return pkgerrors.NewValidationError(err.Error())
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := e.Field()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "entityid":
		return fmt.Sprintf("%s must be 1-128 characters without '/', '#' or '?'", field)
	case "finite":
		return fmt.Sprintf("%s must be a finite number", field)
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
