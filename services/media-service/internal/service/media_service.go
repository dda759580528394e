package service

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/events"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/media-service/internal/domain"
	"SocialMeshPlatform/services/media-service/internal/repository"
	"SocialMeshPlatform/services/media-service/internal/storage"
)

// Сообщения об ошибках загрузки
const (
	MessageNoFile      = "No file found. Please add a file and try again!"
	MessageFileTooLarge = "File exceeds the maximum upload size"
)

const defaultMimeType = "application/octet-stream"

// UploadInput загружаемый файл
type UploadInput struct {
	UserID      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// MediaService загрузка и удаление медиафайлов
type MediaService struct {
	media     repository.MediaRepository
	store     storage.ObjectStore
	publisher events.Publisher
	maxBytes  int64
	log       logger.Logger
	now       func() time.Time
}

// NewMediaService создает MediaService. maxBytes <= 0 снимает ограничение размера.
func NewMediaService(media repository.MediaRepository, store storage.ObjectStore, publisher events.Publisher, maxBytes int64, log logger.Logger) *MediaService {
	return &MediaService{
		media:     media,
		store:     store,
		publisher: publisher,
		maxBytes:  maxBytes,
		log:       log,
		now:       time.Now,
	}
}

// MaxBytes предел размера файла
func (s *MediaService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload кладет файл в хранилище под ключом <userId>/<uuid>-<name> и сохраняет метаданные
func (s *MediaService) Upload(ctx context.Context, in UploadInput) (*domain.Media, error) {
	if in.Body == nil || in.Size <= 0 {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, MessageNoFile)
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, MessageFileTooLarge)
	}

	mimeType := in.ContentType
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	id := uuid.NewString()
	name := sanitizeName(in.FileName)
	key := in.UserID + "/" + id + "-" + name

	if err := s.store.Put(ctx, key, in.Body, in.Size, mimeType); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error uploading media")
	}

	media := &domain.Media{
		ID:           id,
		UserID:       in.UserID,
		ObjectKey:    key,
		OriginalName: name,
		MimeType:     mimeType,
		Size:         in.Size,
		URL:          s.store.URL(key),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.media.Create(ctx, media); err != nil {
		// Объект без строки метаданных никто не удалит
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Warn("Failed to remove orphaned object",
				logger.String("key", key),
				logger.Error(delErr))
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error uploading media")
	}

	if err := s.publisher.Publish(ctx, events.TopicMediaUploaded, events.MediaUploaded{
		MediaID: media.ID,
		UserID:  media.UserID,
		URL:     media.URL,
	}); err != nil {
		s.log.Warn("Failed to publish event",
			logger.String("topic", events.TopicMediaUploaded),
			logger.String("media_id", media.ID),
			logger.Error(err))
	}

	s.log.Info("Media uploaded",
		logger.String("media_id", media.ID),
		logger.String("user_id", media.UserID),
		logger.Int64("size", media.Size))
	return media, nil
}

// List файлы пользователя
func (s *MediaService) List(ctx context.Context, userID string) ([]domain.Media, error) {
	items, err := s.media.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error fetching medias")
	}
	return items, nil
}

// HandlePostDeleted удаляет медиафайлы удаленной публикации.
// Сначала объекты, затем строки: повтор после сбоя находит оставшиеся строки и доводит удаление.
func (s *MediaService) HandlePostDeleted(ctx context.Context, env events.Envelope) error {
	var payload events.PostDeleted
	if err := env.Decode(&payload); err != nil {
		s.log.Error("Skipping undecodable post.deleted", logger.String("event_id", env.ID), logger.Error(err))
		return nil
	}
	if len(payload.MediaIDs) == 0 {
		return nil
	}

	items, err := s.media.FindByIDs(ctx, payload.MediaIDs, payload.UserID)
	if err != nil {
		return err
	}

	for _, m := range items {
		if err := s.store.Delete(ctx, m.ObjectKey); err != nil {
			return err
		}
	}

	deleted, err := s.media.DeleteByIDs(ctx, payload.MediaIDs, payload.UserID)
	if err != nil {
		return err
	}

	s.log.Info("Media removed for deleted post",
		logger.String("post_id", payload.PostID),
		logger.Int64("deleted", deleted))
	return nil
}

// Handlers обработчики событий по топикам
func (s *MediaService) Handlers() map[string]events.Handler {
	return map[string]events.Handler{
		events.TopicPostDeleted: s.HandlePostDeleted,
	}
}

// sanitizeName оставляет только базовое имя без разделителей пути
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}
