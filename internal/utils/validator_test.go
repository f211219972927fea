// internal/utils/validator_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decisionInput struct {
	Decision        string `validate:"required,decision"`
	Reason          string `validate:"notblank"`
	PaymentProofURL string `validate:"required"`
}

func TestGetValidationErrors(t *testing.T) {
	errs := GetValidationErrors(ValidateStruct(&decisionInput{Decision: "maybe", Reason: "   "}))
	require.Len(t, errs, 3)

	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Tag
	}
	assert.Equal(t, map[string]string{
		"decision":          "decision",
		"reason":            "notblank",
		"payment_proof_url": "required",
	}, fields)

	assert.Empty(t, GetValidationErrors(ValidateStruct(&decisionInput{Decision: "reject", Reason: "late", PaymentProofURL: "x"})))
	assert.Empty(t, GetValidationErrors(nil))
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"FullName":        "full_name",
		"Email":           "email",
		"PaymentProofURL": "payment_proof_url",
		"HTTPStatus":      "http_status",
		"ID":              "id",
	}
	for in, want := range cases {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}
