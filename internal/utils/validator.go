// internal/utils/validator.go
package utils

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("notblank", validateNotBlank)
	validate.RegisterValidation("decision", validateDecision)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateEmail checks a single address with the same rules as the
// "email" struct tag.
func ValidateEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateDecision(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "approve", "reject":
		return true
	}
	return false
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   toSnakeCase(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "decision":
		return "Decision must be either approve or reject"
	case "url":
		return e.Field() + " must be a valid URL"
	default:
		return e.Field() + " is invalid"
	}
}

// toSnakeCase turns "PaymentProofURL" into "payment_proof_url".
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
