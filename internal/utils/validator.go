// internal/utils/validator.go
package utils

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// UnitTypes are the units a merchant may price a line in.
var UnitTypes = []string{"kg", "gram", "piece", "box", "carton", "pack", "bottle", "liter", "bag", "dozen", "bundle"}

func init() {
	validate = validator.New()
	validate.RegisterValidation("unit_type", validateUnitType)
	validate.RegisterValidation("media_ref", validateMediaRef)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateUnitType(fl validator.FieldLevel) bool {
	unit := fl.Field().String()
	for _, u := range UnitTypes {
		if u == unit {
			return true
		}
	}
	return false
}

// Media references are object keys or URLs: non-empty, bounded, no whitespace.
func validateMediaRef(fl validator.FieldLevel) bool {
	ref := fl.Field().String()
	if ref == "" || len(ref) > 1024 {
		return false
	}
	return strings.IndexFunc(ref, unicode.IsSpace) < 0
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gt":
		return e.Field() + " must be greater than " + e.Param()
	case "gte":
		return e.Field() + " must be " + e.Param() + " or more"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "unit_type":
		return "Unit type must be one of: " + strings.Join(UnitTypes, ", ")
	case "media_ref":
		return "Media reference must be a URL or object key without spaces"
	default:
		return e.Field() + " is invalid"
	}
}
