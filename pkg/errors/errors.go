package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"SocialMeshPlatform/pkg/logger"
)

// Error представляет ошибку домена с кодом из общей таксономии
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details,omitempty"`
	Status  int             `json:"-"`
	Cause   error           `json:"-"`
	Context context.Context `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Коды ошибок, общие для всех сервисов
const (
	ErrMissingCredential   ErrorCode = "MISSING_CREDENTIAL"
	ErrInvalidCredential   ErrorCode = "INVALID_CREDENTIAL"
	ErrExpired             ErrorCode = "EXPIRED"
	ErrInvalidToken        ErrorCode = "INVALID_TOKEN"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrValidation          ErrorCode = "VALIDATION_FAILED"
	ErrConflict            ErrorCode = "CONFLICT"
	ErrUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrInternal            ErrorCode = "INTERNAL"
)

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithDetails добавляет детали к ошибке
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	c := *e
	c.Details = details
	return &c
}

// WithContext добавляет контекст к ошибке
func (e *Error) WithContext(ctx context.Context) *Error {
	if e == nil {
		return nil
	}
	c := *e
	c.Context = ctx
	return &c
}

// WithStatus переопределяет HTTP статус для конкретного места вызова
func (e *Error) WithStatus(status int) *Error {
	if e == nil {
		return nil
	}
	c := *e
	c.Status = status
	return &c
}

// HTTPStatus возвращает HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	if e.Status != 0 {
		return e.Status
	}

	switch e.Code {
	case ErrMissingCredential, ErrInvalidToken, ErrExpired:
		return http.StatusUnauthorized
	case ErrInvalidCredential, ErrNotFound, ErrValidation, ErrConflict:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает сообщение, которое можно отдать клиенту.
// Для серверных ошибок внутренности не раскрываются.
func (e *Error) PublicMessage() string {
	if e == nil {
		return ""
	}
	if e.HTTPStatus() >= http.StatusInternalServerError {
		return "Internal server error"
	}
	if e.Message != "" {
		return e.Message
	}

	switch e.Code {
	case ErrMissingCredential:
		return "Authentication required"
	case ErrInvalidCredential:
		return "Invalid credentials"
	case ErrExpired:
		return "Token expired"
	case ErrInvalidToken:
		return "Invalid token"
	case ErrRateLimited:
		return "Too many requests. Please try again later."
	case ErrNotFound:
		return "Resource not found"
	case ErrValidation:
		return "Validation failed"
	case ErrConflict:
		return "Resource already exists"
	default:
		return "Internal server error"
	}
}

// As извлекает *Error из цепочки ошибок
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf возвращает код ошибки; для посторонних ошибок ErrInternal
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ErrInternal
}

// IsCode проверяет код ошибки в цепочке
func IsCode(err error, code ErrorCode) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// WriteJSON пишет конверт {success, message?, ...payload}
func WriteJSON(w http.ResponseWriter, status int, success bool, message string, payload map[string]interface{}) {
	body := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = success
	if message != "" {
		body["message"] = message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError пишет ошибку в формате конверта
func WriteError(w http.ResponseWriter, err error) {
	e, ok := As(err)
	if !ok {
		e = Wrap(err, ErrInternal, "internal error")
	}
	WriteJSON(w, e.HTTPStatus(), false, e.PublicMessage(), nil)
}

// Recovery перехватывает панику в обработчике и отвечает 500 без подробностей
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					if recovered == http.ErrAbortHandler {
						panic(recovered)
					}
					log.Error("Panic recovered in HTTP handler",
						logger.Any("panic", recovered),
						logger.String("stack_trace", string(debug.Stack())),
						logger.String("method", r.Method),
						logger.String("path", r.URL.Path),
						logger.String("remote_addr", r.RemoteAddr),
						logger.CtxField(r.Context()))

					WriteError(w, New(ErrInternal, "panic").WithDetails(fmt.Sprintf("%v", recovered)))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
