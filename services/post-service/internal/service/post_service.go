package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/events"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/post-service/internal/domain"
	"SocialMeshPlatform/services/post-service/internal/repository"
)

// Значения пагинации по умолчанию
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// MessagePostNotFound сообщение для отсутствующей или чужой публикации
const MessagePostNotFound = "Post not found"

// Cache cache-aside хранилище публикаций
type Cache interface {
	GetResource(ctx context.Context, id string, dest interface{}) bool
	PutResource(ctx context.Context, id string, value interface{})
	GetCollection(ctx context.Context, page, pageSize int, dest interface{}) bool
	PutCollection(ctx context.Context, page, pageSize int, value interface{})
	InvalidateOnMutation(ctx context.Context, resourceID string) error
}

// PostService операции над публикациями
type PostService struct {
	posts     repository.PostRepository
	cache     Cache
	publisher events.Publisher
	log       logger.Logger
	now       func() time.Time
}

// NewPostService создает PostService
func NewPostService(posts repository.PostRepository, cache Cache, publisher events.Publisher, log logger.Logger) *PostService {
	return &PostService{
		posts:     posts,
		cache:     cache,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Create сохраняет публикацию, сбрасывает кэш ленты и публикует post.created
func (s *PostService) Create(ctx context.Context, userID, content string, mediaIDs []string) (*domain.Post, error) {
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	now := s.now().UTC()
	post := &domain.Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		MediaIDs:  mediaIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error creating post")
	}

	s.publish(ctx, events.TopicPostCreated, events.PostCreated{
		PostID:    post.ID,
		UserID:    post.UserID,
		Content:   post.Content,
		MediaIDs:  post.MediaIDs,
		CreatedAt: post.CreatedAt,
	})
	_ = s.cache.InvalidateOnMutation(ctx, post.ID)

	s.log.Info("Post created",
		logger.String("post_id", post.ID),
		logger.String("user_id", userID),
		logger.CtxField(ctx))
	return post, nil
}

// Get возвращает публикацию, сначала из кэша
func (s *PostService) Get(ctx context.Context, id string) (*domain.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, pkgerrors.New(pkgerrors.ErrNotFound, MessagePostNotFound)
	}

	var cached domain.Post
	if s.cache.GetResource(ctx, id, &cached) {
		return &cached, nil
	}

	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.ErrNotFound, MessagePostNotFound)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error fetching post by ID")
	}

	s.cache.PutResource(ctx, id, post)
	return post, nil
}

// List возвращает страницу ленты, сначала из кэша
func (s *PostService) List(ctx context.Context, page, limit int) (*domain.Page, error) {
	page, limit = normalizePage(page, limit)

	var cached domain.Page
	if s.cache.GetCollection(ctx, page, limit, &cached) {
		return &cached, nil
	}

	posts, total, err := s.posts.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error fetching posts")
	}

	result := &domain.Page{
		Posts:       posts,
		CurrentPage: page,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
		TotalPosts:  total,
	}
	s.cache.PutCollection(ctx, page, limit, result)
	return result, nil
}

// Delete удаляет публикацию владельца, сбрасывает кэш и публикует post.deleted.
// Чужая и несуществующая публикация неразличимы для вызывающего.
func (s *PostService) Delete(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return pkgerrors.New(pkgerrors.ErrNotFound, MessagePostNotFound)
	}

	post, err := s.posts.DeleteOwned(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return pkgerrors.New(pkgerrors.ErrNotFound, MessagePostNotFound)
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "Error deleting post by ID")
	}

	s.publish(ctx, events.TopicPostDeleted, events.PostDeleted{
		PostID:   post.ID,
		UserID:   userID,
		MediaIDs: post.MediaIDs,
	})
	_ = s.cache.InvalidateOnMutation(ctx, id)

	s.log.Info("Post deleted",
		logger.String("post_id", id),
		logger.String("user_id", userID),
		logger.CtxField(ctx))
	return nil
}

// publish не возвращает ошибку: мутация уже зафиксирована
func (s *PostService) publish(ctx context.Context, topic string, payload interface{}) {
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.log.Error("Failed to publish event",
			logger.String("topic", topic),
			logger.Error(err),
			logger.CtxField(ctx))
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}
