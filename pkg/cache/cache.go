package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"SocialMeshPlatform/pkg/config"
	"SocialMeshPlatform/pkg/logger"
)

const scanBatch = 100

// Observer получает результаты обращений к кэшу, используется для метрик
type Observer interface {
	ObserveCache(namespace, op, result string)
}

// Options параметры Store
type Options struct {
	ResourceTTL   time.Duration
	CollectionTTL time.Duration
	Timeout       time.Duration
	Observer      Observer
}

// OptionsFromConfig собирает Options из секции cache
func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{
		ResourceTTL:   config.MustDuration(cfg.ResourceTTL, time.Hour),
		CollectionTTL: config.MustDuration(cfg.CollectionTTL, 5*time.Minute),
		Timeout:       config.MustDuration(cfg.Timeout, 500*time.Millisecond),
	}
}

// Store cache-aside хранилище поверх Redis.
// Ключи: <namespace>:resource:<id> и <namespace>:collection:<page>:<pageSize>.
// Недоступность кэша никогда не роняет запрос: ошибка чтения считается промахом,
// ошибка записи или инвалидации только логируется.
type Store struct {
	client    redis.Cmdable
	namespace string
	opts      Options
	log       logger.Logger
}

// New создает Store для пространства имен сервиса
func New(client redis.Cmdable, namespace string, opts Options, log logger.Logger) *Store {
	if opts.ResourceTTL <= 0 {
		opts.ResourceTTL = time.Hour
	}
	if opts.CollectionTTL <= 0 {
		opts.CollectionTTL = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	return &Store{
		client:    client,
		namespace: namespace,
		opts:      opts,
		log:       log.With(logger.String("cache_namespace", namespace)),
	}
}

// ResourceKey ключ одиночного ресурса
func (s *Store) ResourceKey(id string) string {
	return s.namespace + ":resource:" + id
}

// CollectionKey ключ страницы коллекции
func (s *Store) CollectionKey(page, pageSize int) string {
	return s.QueryKey(strconv.Itoa(page) + ":" + strconv.Itoa(pageSize))
}

// QueryKey ключ коллекции произвольной формы (например, результат поиска)
func (s *Store) QueryKey(shape string) string {
	return s.namespace + ":collection:" + shape
}

// GetResource заполняет dest из кэша. false означает промах, в том числе при ошибке кэша.
func (s *Store) GetResource(ctx context.Context, id string, dest interface{}) bool {
	return s.get(ctx, s.ResourceKey(id), dest)
}

// PutResource кладет ресурс с TTL ресурса
func (s *Store) PutResource(ctx context.Context, id string, value interface{}) {
	s.put(ctx, s.ResourceKey(id), value, s.opts.ResourceTTL)
}

// GetCollection заполняет dest страницей коллекции
func (s *Store) GetCollection(ctx context.Context, page, pageSize int, dest interface{}) bool {
	return s.get(ctx, s.CollectionKey(page, pageSize), dest)
}

// PutCollection кладет страницу коллекции с TTL коллекции
func (s *Store) PutCollection(ctx context.Context, page, pageSize int, value interface{}) {
	s.put(ctx, s.CollectionKey(page, pageSize), value, s.opts.CollectionTTL)
}

// GetQuery читает коллекцию по произвольной форме ключа
func (s *Store) GetQuery(ctx context.Context, shape string, dest interface{}) bool {
	return s.get(ctx, s.QueryKey(shape), dest)
}

// PutQuery кладет коллекцию по произвольной форме ключа с заданным TTL (0 = TTL коллекции)
func (s *Store) PutQuery(ctx context.Context, shape string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.opts.CollectionTTL
	}
	s.put(ctx, s.QueryKey(shape), value, ttl)
}

// InvalidateOnMutation удаляет ключ ресурса и все ключи коллекций пространства имен.
// Ошибка логируется и возвращается только для наблюдаемости: мутация уже зафиксирована в БД.
func (s *Store) InvalidateOnMutation(ctx context.Context, resourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var errs []error
	if resourceID != "" {
		if err := s.client.Del(ctx, s.ResourceKey(resourceID)).Err(); err != nil {
			errs = append(errs, fmt.Errorf("delete resource key: %w", err))
		}
	}
	if _, err := s.deleteByPattern(ctx, s.namespace+":collection:*"); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		s.log.Error("Cache invalidation failed",
			logger.String("resource_id", resourceID),
			logger.Error(err),
			logger.CtxField(ctx))
		s.observe("invalidate", "error")
		return err
	}
	s.observe("invalidate", "ok")
	return nil
}

// InvalidateCollections удаляет все ключи коллекций
func (s *Store) InvalidateCollections(ctx context.Context) error {
	return s.InvalidateOnMutation(ctx, "")
}

// Flush удаляет все ключи пространства имен. Возвращает число удаленных ключей.
func (s *Store) Flush(ctx context.Context) (int, error) {
	return s.deleteByPattern(ctx, s.namespace+":*")
}

// deleteByPattern проходит SCAN и удаляет ключи пачками
func (s *Store) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("delete %d keys: %w", len(batch), err)
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return deleted, flush()
}

func (s *Store) get(ctx context.Context, key string, dest interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("Cache read failed, treating as miss",
				logger.String("key", key),
				logger.Error(err),
				logger.CtxField(ctx))
			s.observe("get", "error")
		} else {
			s.observe("get", "miss")
		}
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		s.log.Warn("Cache entry is corrupted, treating as miss",
			logger.String("key", key),
			logger.Error(err))
		s.observe("get", "error")
		return false
	}

	s.observe("get", "hit")
	return true
}

func (s *Store) put(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.log.Error("Cache value is not serializable", logger.String("key", key), logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.log.Warn("Cache write failed",
			logger.String("key", key),
			logger.Error(err),
			logger.CtxField(ctx))
		s.observe("set", "error")
		return
	}
	s.observe("set", "ok")
}

func (s *Store) observe(op, result string) {
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveCache(s.namespace, op, result)
	}
}
