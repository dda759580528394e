package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/search-service/internal/service"
)

// Handler HTTP обработчики search-service
type Handler struct {
	search *service.SearchService
	log    logger.Logger
}

// NewHandler создает новый Handler
func NewHandler(search *service.SearchService, log logger.Logger) *Handler {
	return &Handler{search: search, log: log}
}

// Routes вешает маршруты /api/search на r
func (h *Handler) Routes(r chi.Router, source identity.TrustedIdentitySource) {
	r.Route("/api/search", func(r chi.Router) {
		r.Use(identity.Middleware(source, h.log))
		r.Get("/posts", h.SearchPosts)
	})
}

// SearchPosts GET /api/search/posts?query=
func (h *Handler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.ErrInternal {
			h.log.Error("Search failed", logger.Error(err), logger.CtxField(r.Context()))
		}
		pkgerrors.WriteError(w, err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "", map[string]interface{}{
		"results": results,
	})
}
