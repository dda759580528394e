package service

import (
	"context"
	"strings"
	"time"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/events"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/search-service/internal/domain"
	"SocialMeshPlatform/services/search-service/internal/repository"
)

const (
	// ResultLimit максимум результатов поиска
	ResultLimit = 10
	// ResultTTL время жизни закэшированного результата
	ResultTTL = 120 * time.Second
)

// MessageQueryRequired ответ на пустой запрос
const MessageQueryRequired = "Search query is required"

// Cache кэш результатов поиска
type Cache interface {
	GetQuery(ctx context.Context, shape string, dest interface{}) bool
	PutQuery(ctx context.Context, shape string, value interface{}, ttl time.Duration)
	InvalidateCollections(ctx context.Context) error
}

// SearchService поиск и поддержание проекции по событиям публикаций
type SearchService struct {
	repo  repository.SearchRepository
	cache Cache
	log   logger.Logger
}

// NewSearchService создает SearchService
func NewSearchService(repo repository.SearchRepository, cache Cache, log logger.Logger) *SearchService {
	return &SearchService{repo: repo, cache: cache, log: log}
}

// Search ищет публикации по словам запроса
func (s *SearchService) Search(ctx context.Context, query string) ([]domain.SearchPost, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, MessageQueryRequired)
	}

	var cached []domain.SearchPost
	if s.cache.GetQuery(ctx, query, &cached) {
		return cached, nil
	}

	results, err := s.repo.Search(ctx, query, ResultLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error while searching post")
	}

	s.cache.PutQuery(ctx, query, results, ResultTTL)
	return results, nil
}

// HandlePostCreated добавляет публикацию в проекцию
func (s *SearchService) HandlePostCreated(ctx context.Context, env events.Envelope) error {
	var payload events.PostCreated
	if err := env.Decode(&payload); err != nil {
		s.log.Error("Skipping undecodable post.created", logger.String("event_id", env.ID), logger.Error(err))
		return nil
	}

	createdAt := payload.CreatedAt
	if createdAt.IsZero() {
		createdAt = env.OccurredAt
	}
	if err := s.repo.Upsert(ctx, &domain.SearchPost{
		PostID:    payload.PostID,
		UserID:    payload.UserID,
		Content:   payload.Content,
		CreatedAt: createdAt,
	}); err != nil {
		return err
	}

	_ = s.cache.InvalidateCollections(ctx)
	s.log.Info("Search post indexed", logger.String("post_id", payload.PostID))
	return nil
}

// HandlePostDeleted убирает публикацию из проекции
func (s *SearchService) HandlePostDeleted(ctx context.Context, env events.Envelope) error {
	var payload events.PostDeleted
	if err := env.Decode(&payload); err != nil {
		s.log.Error("Skipping undecodable post.deleted", logger.String("event_id", env.ID), logger.Error(err))
		return nil
	}

	if err := s.repo.Delete(ctx, payload.PostID); err != nil {
		return err
	}

	_ = s.cache.InvalidateCollections(ctx)
	s.log.Info("Search post removed", logger.String("post_id", payload.PostID))
	return nil
}

// Handlers обработчики событий по топикам
func (s *SearchService) Handlers() map[string]events.Handler {
	return map[string]events.Handler{
		events.TopicPostCreated: s.HandlePostCreated,
		events.TopicPostDeleted: s.HandlePostDeleted,
	}
}
