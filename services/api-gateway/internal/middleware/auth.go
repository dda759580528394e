// Package middleware содержит middleware шлюза, специфичные для границы доверия
package middleware

import (
	"net/http"
	"strings"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/token"
)

const bearerPrefix = "Bearer "

// Auth проверяет access токен на границе.
// Успех: идентичность кладется в контекст и заменяет присланные клиентом x-user-id и x-user-name.
// Любой отказ отвечает 401 и запрос дальше не идет.
func Auth(verifier token.Verifier, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				log.Warn("Access attempt without valid token",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.CtxField(r.Context()))
				pkgerrors.WriteError(w, pkgerrors.New(pkgerrors.ErrMissingCredential, identity.MessageAuthRequired))
				return
			}

			id, err := verifier.Verify(raw)
			if err != nil {
				log.Warn("Invalid token",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.Error(err),
					logger.CtxField(r.Context()))
				if !pkgerrors.IsCode(err, pkgerrors.ErrExpired) && !pkgerrors.IsCode(err, pkgerrors.ErrInvalidToken) {
					err = pkgerrors.Wrap(err, pkgerrors.ErrInvalidToken, "Invalid token")
				}
				pkgerrors.WriteError(w, err)
				return
			}

			identity.Inject(r.Header, id)
			next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), id)))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(header string) (string, bool) {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	return raw, raw != ""
}
