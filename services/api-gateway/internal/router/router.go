// Package router собирает маршруты шлюза: лимиты, проверка токена, прокси
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	pkgerrors "SocialMeshPlatform/pkg/errors"
)

// Upstreams обработчики-прокси внутренних сервисов
type Upstreams struct {
	Identity http.Handler
	Post     http.Handler
	Media    http.Handler
	Search   http.Handler
}

// Gates middleware в порядке применения: global, затем sensitive, затем auth
type Gates struct {
	Global         func(http.Handler) http.Handler
	Sensitive      func(http.Handler) http.Handler
	SensitivePaths []string
	Auth           func(http.Handler) http.Handler
}

// Mount вешает /v1 на r. Отказ любого шлюза завершает запрос без обращения к сервису.
func Mount(r chi.Router, gates Gates, up Upstreams) {
	r.Route("/v1", func(r chi.Router) {
		if gates.Global != nil {
			r.Use(gates.Global)
		}
		if gates.Sensitive != nil {
			r.Use(onlyPaths(gates.SensitivePaths, gates.Sensitive))
		}

		// Вход и регистрация без токена
		r.Handle("/auth", up.Identity)
		r.Handle("/auth/*", up.Identity)

		r.Group(func(r chi.Router) {
			r.Use(gates.Auth)
			r.Handle("/posts/*", up.Post)
			r.Handle("/media/*", up.Media)
			r.Handle("/search/*", up.Search)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			pkgerrors.WriteJSON(w, http.StatusNotFound, false, "Route not found", nil)
		})
	})
}

// onlyPaths применяет mw только к запросам с путем из paths
func onlyPaths(paths []string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := set[r.URL.Path]; ok {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
