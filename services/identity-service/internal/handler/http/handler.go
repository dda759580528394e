package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/validation"
	"SocialMeshPlatform/services/identity-service/internal/service"
)

// Handler HTTP обработчики identity-service
type Handler struct {
	auth      *service.AuthService
	tokens    *service.TokenService
	validator *validation.Validator
	log       logger.Logger
}

// NewHandler создает новый Handler
func NewHandler(auth *service.AuthService, tokens *service.TokenService, log logger.Logger) *Handler {
	return &Handler{
		auth:      auth,
		tokens:    tokens,
		validator: validation.NewValidator(),
		log:       log,
	}
}

// Routes вешает маршруты /api/auth на r. sensitive применяется только к регистрации.
func (h *Handler) Routes(r chi.Router, sensitive ...func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.With(sensitive...).Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh-token", h.RefreshToken)
		r.Post("/logout", h.Logout)
	})
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "register", err)
		return
	}

	pair, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusCreated, true, "User created", map[string]interface{}{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Login POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "login", err)
		return
	}

	userID, pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "", map[string]interface{}{
		"userId":       userID,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// RefreshToken POST /api/auth/refresh-token
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "refresh", err)
		return
	}

	pair, err := h.tokens.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "", map[string]interface{}{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "logout", err)
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, "logout", err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "Logged out successfully!", nil)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if pkgerrors.CodeOf(err) == pkgerrors.ErrInternal {
		h.log.Error("Auth operation failed",
			logger.String("operation", op),
			logger.Error(err),
			logger.CtxField(r.Context()))
	}
	pkgerrors.WriteError(w, err)
}
