package middleware

import (
	"net/http"
	"strings"

	"SocialMeshPlatform/pkg/logger"
)

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsAllowHeaders  = "Content-Type, Authorization, X-Requested-With, " + TraceHeader
	corsExposeHeaders = "RateLimit-Limit, RateLimit-Remaining, Retry-After, " + TraceHeader
)

// CORSMiddleware настраивает CORS заголовки для браузерных клиентов.
// Preflight от неразрешенного источника отклоняется с 403 и не доходит до лимитеров.
func CORSMiddleware(allowedOrigins []string, log logger.Logger) func(http.Handler) http.Handler {
	anyOrigin := false
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			anyOrigin = true
		}
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Не браузерный запрос
				next.ServeHTTP(w, r)
				return
			}

			_, listed := origins[origin]
			if !anyOrigin && !listed {
				log.Warn("CORS origin not allowed",
					logger.String("origin", origin),
					logger.Strings("allowed_origins", allowedOrigins))
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
