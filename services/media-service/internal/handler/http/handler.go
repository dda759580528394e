package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/media-service/internal/service"
)

const (
	formField = "file"
	// запас на заголовки multipart сверх размера файла
	multipartOverhead = 1 << 20
	maxMemory         = 8 << 20
)

// Handler HTTP обработчики media-service
type Handler struct {
	media *service.MediaService
	log   logger.Logger
}

// NewHandler создает новый Handler
func NewHandler(media *service.MediaService, log logger.Logger) *Handler {
	return &Handler{media: media, log: log}
}

// Routes вешает маршруты /api/media на r
func (h *Handler) Routes(r chi.Router, source identity.TrustedIdentitySource) {
	r.Route("/api/media", func(r chi.Router) {
		r.Use(identity.Middleware(source, h.log))
		r.Post("/upload", h.Upload)
		r.Get("/get", h.List)
	})
}

// Upload POST /api/media/upload, multipart поле file
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())

	if limit := h.media.MaxBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, pkgerrors.New(pkgerrors.ErrValidation, service.MessageFileTooLarge))
			return
		}
		h.fail(w, r, pkgerrors.New(pkgerrors.ErrValidation, service.MessageNoFile))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(formField)
	if err != nil {
		h.fail(w, r, pkgerrors.New(pkgerrors.ErrValidation, service.MessageNoFile))
		return
	}
	defer file.Close()

	media, err := h.media.Upload(r.Context(), service.UploadInput{
		UserID:      id.UserID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusCreated, true, "Media upload is successfully", map[string]interface{}{
		"mediaId": media.ID,
		"url":     media.URL,
	})
}

// List GET /api/media/get
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())

	items, err := h.media.List(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pkgerrors.WriteJSON(w, http.StatusOK, true, "", map[string]interface{}{
		"medias": items,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if pkgerrors.CodeOf(err) == pkgerrors.ErrInternal {
		h.log.Error("Media operation failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
			logger.CtxField(r.Context()))
	}
	pkgerrors.WriteError(w, err)
}
