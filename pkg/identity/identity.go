// Package identity описывает вызывающего, проверенного на границе, и контракт доверия
// внутренних сервисов к заголовкам, выставленным шлюзом.
//
// Внутренние сервисы не проверяют подпись токена повторно. Они доверяют x-user-id,
// поэтому должны быть недоступны иначе как через шлюз.
package identity

import (
	"context"
	"net/http"
	"strings"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/logger"
)

const (
	// HeaderUserID идентификатор проверенного вызывающего
	HeaderUserID = "x-user-id"
	// HeaderUserName отображаемое имя проверенного вызывающего
	HeaderUserName = "x-user-name"

	// MessageAuthRequired ответ при отсутствии заголовка доверия
	MessageAuthRequired = "Authentication required! Please login to continue"
)

// Identity вызывающий, связанный с запросом. Живет только в пределах запроса.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// IsZero возвращает true, если идентификатор пуст
func (i Identity) IsZero() bool {
	return i.UserID == ""
}

type contextKey struct{}

// NewContext возвращает контекст с Identity
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext извлекает Identity из контекста
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && !id.IsZero()
}

// Inject заменяет заголовки идентичности проверенными значениями.
// Присланные клиентом значения удаляются всегда.
func Inject(h http.Header, id Identity) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserName)
	if id.IsZero() {
		return
	}
	h.Set(HeaderUserID, id.UserID)
	if id.Username != "" {
		h.Set(HeaderUserName, id.Username)
	}
}

// TrustedIdentitySource источник идентичности для внутренних сервисов.
// В отличие от проверки токена на границе, ничего не верифицирует криптографически.
type TrustedIdentitySource interface {
	Identity(r *http.Request) (Identity, bool)
}

// HeaderSource читает идентичность из заголовков, выставленных шлюзом
type HeaderSource struct{}

// Identity реализует TrustedIdentitySource
func (HeaderSource) Identity(r *http.Request) (Identity, bool) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Identity{}, false
	}
	return Identity{
		UserID:   userID,
		Username: strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}, true
}

// Middleware пропускает запрос только с идентичностью от source и кладет ее в контекст
func Middleware(source TrustedIdentitySource, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := source.Identity(r)
			if !ok {
				log.Warn("Access attempt without trusted identity",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.CtxField(r.Context()))
				pkgerrors.WriteError(w, pkgerrors.New(pkgerrors.ErrMissingCredential, MessageAuthRequired))
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}
