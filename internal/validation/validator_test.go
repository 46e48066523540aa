package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/validation"
)

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
	Name     string `json:"name" validate:"notblank"`
}

func TestValidator_Success(t *testing.T) {
	v := validation.New()

	err := v.Validate(signUpRequest{Email: "anna@example.dk", Password: "hammer-time", Name: "Anna"})
	assert.NoError(t, err)
}

func TestValidator_FieldErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       signUpRequest
		wantField string
		wantMsg   string
	}{
		{
			name:      "whitespace name",
			req:       signUpRequest{Email: "anna@example.dk", Password: "hammer-time", Name: "   "},
			wantField: "name",
			wantMsg:   "must not be blank",
		},
		{
			name:      "invalid email",
			req:       signUpRequest{Email: "anna", Password: "hammer-time", Name: "Anna"},
			wantField: "email",
			wantMsg:   "must be a valid email address",
		},
		{
			name:      "short password",
			req:       signUpRequest{Email: "anna@example.dk", Password: "short", Name: "Anna"},
			wantField: "password",
			wantMsg:   "must be at least 8 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}

func TestValidator_MatchesSentinel(t *testing.T) {
	err := validation.New().Validate(signUpRequest{})

	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}
