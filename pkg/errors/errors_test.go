package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMeshPlatform/pkg/logger"
)

// TestNewError проверяет создание новой ошибки
func TestNewError(t *testing.T) {
	e := New(ErrNotFound, "resource not found")
	require.NotNil(t, e)
	assert.Equal(t, ErrNotFound, e.Code)
	assert.Equal(t, "resource not found", e.Message)
	assert.Nil(t, e.Cause)
}

// TestWrapError проверяет оборачивание существующей ошибки
func TestWrapError(t *testing.T) {
	originalErr := fmt.Errorf("database error")
	e := Wrap(originalErr, ErrInternal, "failed to save resource")

	require.NotNil(t, e)
	assert.Equal(t, ErrInternal, e.Code)
	assert.Equal(t, "failed to save resource: database error", e.Error())
	assert.ErrorIs(t, e, originalErr)

	assert.Nil(t, Wrap(nil, ErrInternal, "nothing"))
}

// TestWithDetails исходная ошибка не должна меняться
func TestWithDetails(t *testing.T) {
	e := New(ErrValidation, "invalid input")
	withDetails := e.WithDetails("field 'name' is required")

	assert.Equal(t, "field 'name' is required", withDetails.Details)
	assert.Empty(t, e.Details)
}

func TestWithContext(t *testing.T) {
	ctx := logger.WithTraceID(context.Background(), "123")
	e := New(ErrMissingCredential, "access denied")
	withCtx := e.WithContext(ctx)

	require.NotNil(t, withCtx.Context)
	assert.Equal(t, "123", logger.TraceID(withCtx.Context))
	assert.Nil(t, e.Context)
}

// TestErrorIs ошибки сравниваются по коду, в том числе сквозь обертки
func TestErrorIs(t *testing.T) {
	e := New(ErrNotFound, "resource not found")
	assert.True(t, e.Is(New(ErrNotFound, "another message")))
	assert.False(t, e.Is(New(ErrInternal, "internal error")))

	wrapped := fmt.Errorf("repo: %w", e)
	assert.ErrorIs(t, wrapped, New(ErrNotFound, ""))
	assert.True(t, IsCode(wrapped, ErrNotFound))
	assert.Equal(t, ErrNotFound, CodeOf(wrapped))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
}

// TestHTTPStatus проверяет соответствие HTTP статусов
func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrMissingCredential, http.StatusUnauthorized},
		{ErrInvalidToken, http.StatusUnauthorized},
		{ErrExpired, http.StatusUnauthorized},
		{ErrInvalidCredential, http.StatusBadRequest},
		{ErrNotFound, http.StatusBadRequest},
		{ErrValidation, http.StatusBadRequest},
		{ErrConflict, http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrUpstreamUnavailable, http.StatusInternalServerError},
		{ErrInternal, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.expected, New(tc.code, "test message").HTTPStatus())
		})
	}
}

func TestWithStatus(t *testing.T) {
	e := New(ErrInvalidCredential, "Invalid or expired refresh token").WithStatus(http.StatusUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, e.HTTPStatus())
}

// TestPublicMessage серверные ошибки не раскрывают внутренности
func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "Invalid credentials", New(ErrInvalidCredential, "Invalid credentials").PublicMessage())
	assert.Equal(t, "Invalid token", New(ErrInvalidToken, "").PublicMessage())
	assert.Equal(t, "Internal server error", New(ErrInternal, "pq: connection refused").PublicMessage())
	assert.Equal(t, "Internal server error", New(ErrUpstreamUnavailable, "dial tcp").PublicMessage())
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, true, "User created", map[string]interface{}{"accessToken": "a"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "User created", body["message"])
	assert.Equal(t, "a", body["accessToken"])
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("handler: %w", New(ErrRateLimited, "")))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Too many requests. Please try again later.", body["message"])

	w = httptest.NewRecorder()
	WriteError(w, fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
	assert.NotContains(t, w.Body.String(), "boom")
}

// TestRecovery паника превращается в 500 без утечки деталей
func TestRecovery(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("secret internal state")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	Recovery(logger.NewNop())(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.NotContains(t, w.Body.String(), "secret internal state")
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	Recovery(logger.NewNop())(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
