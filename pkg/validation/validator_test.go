package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "SocialMeshPlatform/pkg/errors"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func TestStruct(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Struct(&registerRequest{Username: "alice", Email: "a@example.com", Password: "secret1"}))

	err := v.Struct(&registerRequest{Username: "al", Email: "a@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))
	e, _ := pkgerrors.As(err)
	assert.Equal(t, `"username" length must be at least 3 characters long`, e.Message)

	err = v.Struct(&registerRequest{Username: "alice", Email: "nope", Password: "secret1"})
	e, _ = pkgerrors.As(err)
	assert.Equal(t, `"email" must be a valid email`, e.Message)
	assert.Equal(t, http.StatusBadRequest, e.HTTPStatus())
}

func TestDecodeJSON(t *testing.T) {
	v := NewValidator()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice","email":"a@example.com","password":"secret1"}`))
	var dst registerRequest
	require.NoError(t, v.DecodeJSON(req, &dst))
	assert.Equal(t, "alice", dst.Username)

	for _, body := range []string{"", "{not json", `{"username":"alice"}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := v.DecodeJSON(req, &registerRequest{})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation), "body %q", body)
	}
}

func TestValidateURL(t *testing.T) {
	v := NewValidator()
	schemes := []string{"http", "https"}

	assert.NoError(t, v.ValidateURL("http://localhost:8001", schemes))
	assert.Error(t, v.ValidateURL("", schemes))
	assert.Error(t, v.ValidateURL("ftp://host", schemes))
	assert.Error(t, v.ValidateURL("http://", schemes))
	assert.Error(t, v.ValidateURL("http://bad host", schemes))
}

func TestValidateCronExpression(t *testing.T) {
	v := NewValidator()

	for _, expr := range []string{"@every 1h", "@hourly", "0 * * * *", "*/30 * * * * *"} {
		assert.NoError(t, v.ValidateCronExpression(expr), expr)
	}
	for _, expr := range []string{"", "every hour", "61 * * * *"} {
		assert.Error(t, v.ValidateCronExpression(expr), expr)
	}
}

func TestValidateUUID(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateUUID("6f1c2a9e-1d2b-4d0e-9a41-2b8f1a3c7e55", "id"))
	assert.True(t, pkgerrors.IsCode(v.ValidateUUID("", "id"), pkgerrors.ErrValidation))
	assert.True(t, pkgerrors.IsCode(v.ValidateUUID("42", "id"), pkgerrors.ErrValidation))
}
