// Package proxy перенаправляет запросы шлюза во внутренние сервисы
package proxy

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httputil"
	"strings"

	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/api-gateway/internal/upstream"
)

const (
	// PublicPrefix префикс внешних маршрутов
	PublicPrefix = "/v1"
	// InternalPrefix префикс маршрутов внутренних сервисов
	InternalPrefix = "/api"
)

// MessageUpstreamFailure сообщение клиенту при недоступном сервисе
const MessageUpstreamFailure = "Internal server error"

// New создает обратный прокси к up. transport обычно CircuitBreaker над общим http.Transport.
func New(up *upstream.Upstream, transport http.RoundTripper, log logger.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = RewritePath(pr.In.URL.Path)
			pr.Out.URL.RawPath = ""
			pr.SetURL(up.Next())
			pr.SetXForwarded()

			// Идентичность берется только из проверенного контекста, клиентские заголовки отбрасываются
			id, _ := identity.FromContext(pr.In.Context())
			identity.Inject(pr.Out.Header, id)

			if !isMultipart(pr.In.Header.Get("Content-Type")) {
				pr.Out.Header.Set("Content-Type", "application/json")
			}
		},
		Transport:    transport,
		ErrorHandler: errorHandler(up.Name(), log),
	}
}

// RewritePath заменяет внешний префикс /v1 на внутренний /api
func RewritePath(path string) string {
	if path == PublicPrefix {
		return InternalPrefix
	}
	if strings.HasPrefix(path, PublicPrefix+"/") {
		return InternalPrefix + strings.TrimPrefix(path, PublicPrefix)
	}
	return path
}

func isMultipart(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "multipart/")
	}
	return strings.HasPrefix(mediaType, "multipart/")
}

func errorHandler(name string, log logger.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("Upstream request failed",
			logger.String("upstream", name),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
			logger.CtxField(r.Context()))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": MessageUpstreamFailure,
			"error":   err.Error(),
		})
	}
}
