package validator

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

type enquiryForm struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=5"`
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func TestValidate_Success(t *testing.T) {
	s := enquiryForm{Name: "Asha", Email: "asha@example.com", Rating: 4}
	assert.NoError(t, Validate(s))
}

func TestValidate_MissingRequired_UsesJSONName(t *testing.T) {
	fields := fieldsOf(t, Validate(enquiryForm{Email: "asha@example.com", Rating: 3}))
	assert.Equal(t, "is required", fields["name"])
	assert.NotContains(t, fields, "Name")
}

func TestValidate_InvalidEmail(t *testing.T) {
	fields := fieldsOf(t, Validate(enquiryForm{Name: "Asha", Email: "not-an-email", Rating: 3}))
	assert.Equal(t, "must be a valid email address", fields["email"])
}

func TestValidate_OutOfRange(t *testing.T) {
	fields := fieldsOf(t, Validate(enquiryForm{Name: "Asha", Email: "a@b.co", Rating: 9}))
	assert.Contains(t, fields["rating"], "5")

	fields = fieldsOf(t, Validate(enquiryForm{Name: "Asha", Email: "a@b.co", Rating: 0}))
	assert.Contains(t, fields["rating"], "1")
}

func TestValidate_Max(t *testing.T) {
	fields := fieldsOf(t, Validate(enquiryForm{Name: "Asha", Email: "a@b.co", Rating: 2, Comment: "far too long"}))
	assert.Contains(t, fields["comment"], "at most 5")
}

func TestValidate_MultipleErrors(t *testing.T) {
	fields := fieldsOf(t, Validate(enquiryForm{}))
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "rating")
}

func TestValidationError_ErrorStringAndSentinel(t *testing.T) {
	err := Validate(enquiryForm{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'name'")
	assert.Contains(t, err.Error(), "is required")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
}

type listForm struct {
	Items []string `json:"items" validate:"min=1"`
	ID    string   `json:"id" validate:"omitempty,uuid"`
	Mode  string   `json:"mode" validate:"omitempty,oneof=cart direct"`
}

func TestValidate_SliceMin(t *testing.T) {
	fields := fieldsOf(t, Validate(listForm{}))
	assert.Equal(t, "must contain at least 1 items", fields["items"])
}

func TestValidate_UUIDAndOneOf(t *testing.T) {
	fields := fieldsOf(t, Validate(listForm{Items: []string{"a"}, ID: "nope", Mode: "later"}))
	assert.Equal(t, "must be a valid UUID", fields["id"])
	assert.Contains(t, fields["mode"], "one of")

	assert.NoError(t, Validate(listForm{Items: []string{"a"}, ID: "550e8400-e29b-41d4-a716-446655440000", Mode: "direct"}))
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"name":"Asha","email":"asha@example.com","rating":5}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s enquiryForm
	require.NoError(t, DecodeAndValidate(req, &s))
	assert.Equal(t, "Asha", s.Name)
	assert.Equal(t, 5, s.Rating)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var s enquiryForm
	err := DecodeAndValidate(req, &s)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"","email":"bad","rating":2}`))

	var s enquiryForm
	err := DecodeAndValidate(req, &s)

	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}

type addressForm struct {
	City  string         `json:"city" validate:"notblank"`
	Tags  map[string]int `json:"tags" validate:"max=1"`
	Count int            `json:"count" validate:"max=3"`
}

func TestValidate_NotBlankAndKinds(t *testing.T) {
	fields := fieldsOf(t, Validate(addressForm{City: "   ", Tags: map[string]int{"a": 1, "b": 2}, Count: 4}))
	assert.Equal(t, "is required", fields["city"])
	assert.Equal(t, "must contain at most 1 items", fields["tags"])
	assert.Equal(t, "must be at most 3", fields["count"])

	assert.NoError(t, Validate(addressForm{City: "Kochi"}))
}
