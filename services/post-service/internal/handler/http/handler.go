package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/validation"
	"SocialMeshPlatform/services/post-service/internal/service"
)

// Handler HTTP обработчики post-service
type Handler struct {
	posts     *service.PostService
	validator *validation.Validator
	log       logger.Logger
}

// NewHandler создает новый Handler
func NewHandler(posts *service.PostService, log logger.Logger) *Handler {
	return &Handler{
		posts:     posts,
		validator: validation.NewValidator(),
		log:       log,
	}
}

// Routes вешает маршруты /api/posts на r. Все маршруты требуют идентичность от шлюза.
func (h *Handler) Routes(r chi.Router, source identity.TrustedIdentitySource) {
	r.Route("/api/posts", func(r chi.Router) {
		r.Use(identity.Middleware(source, h.log))
		r.Post("/create-post", h.CreatePost)
		r.Get("/all-posts", h.ListPosts)
		r.Get("/post/{id}", h.GetPost)
		r.Delete("/delete-post/{id}", h.DeletePost)
	})
}

type createPostRequest struct {
	Content  string   `json:"content" validate:"required,min=3,max=5000"`
	MediaIDs []string `json:"mediaIds" validate:"omitempty,max=20,dive,required"`
}

// CreatePost POST /api/posts/create-post
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())

	var req createPostRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	post, err := h.posts.Create(r.Context(), id.UserID, req.Content, req.MediaIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusCreated, true, "Post created successfully", map[string]interface{}{
		"postId": post.ID,
	})
}

// ListPosts GET /api/posts/all-posts?page=&limit=
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.posts.List(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "", map[string]interface{}{
		"posts":       result.Posts,
		"currentPage": result.CurrentPage,
		"totalPage":   result.TotalPages,
		"totalPosts":  result.TotalPosts,
	})
}

// GetPost GET /api/posts/post/{id}
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "", map[string]interface{}{
		"post": post,
	})
}

// DeletePost DELETE /api/posts/delete-post/{id}
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())

	if err := h.posts.Delete(r.Context(), chi.URLParam(r, "id"), id.UserID); err != nil {
		h.fail(w, r, err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "Post deleted successfully", nil)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if pkgerrors.CodeOf(err) == pkgerrors.ErrInternal {
		h.log.Error("Post operation failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
			logger.CtxField(r.Context()))
	}
	pkgerrors.WriteError(w, err)
}
