package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"SocialMeshPlatform/pkg/config"
)

// Algorithm алгоритм подсчета окна
type Algorithm string

const (
	// FixedWindow счетчик INCR с истечением в конце окна
	FixedWindow Algorithm = "fixed"
	// SlidingWindow отметки запросов в ZSET за последние Window
	SlidingWindow Algorithm = "sliding"
)

// Policy описывает одну политику ограничения
type Policy struct {
	Name      string
	Algorithm Algorithm
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// Decision результат проверки лимита
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter атомарно увеличивает счетчик и проверяет лимит за одну операцию
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Policy() Policy
}

// PolicyFromConfig собирает политику из секции конфигурации
func PolicyFromConfig(name string, cfg config.RateLimitPolicyConfig) Policy {
	return Policy{
		Name:      name,
		Algorithm: Algorithm(cfg.Algorithm),
		Limit:     cfg.Limit,
		Window:    config.MustDuration(cfg.Window, time.Second),
	}
}

// fixedWindowScript INCR и PEXPIRE на первом попадании в окно.
// Возвращает {allowed, remaining, pttl}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
local limit = tonumber(ARGV[2])
if current > limit then
	return {0, 0, ttl}
end
return {1, limit - current, ttl}
`)

// slidingWindowScript хранит отметки запросов в ZSET.
// Отклоненные запросы не записываются. Возвращает {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[5])
local count = redis.call("ZCARD", KEYS[1])
if count < limit then
	redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return {1, limit - count - 1, 0}
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local retry = window
if oldest[2] then
	retry = tonumber(oldest[2]) + window - now
end
return {0, 0, retry}
`)

// RedisLimiter реализация Limiter поверх общего хранилища счетчиков.
// Собственного изменяемого состояния не хранит, поэтому экземпляры шлюза масштабируются без координации.
type RedisLimiter struct {
	client  redis.Scripter
	policy  Policy
	timeout time.Duration
	now     func() time.Time
}

// NewRedisLimiter создает лимитер для политики. timeout ограничивает каждый вызов хранилища.
func NewRedisLimiter(client redis.Scripter, policy Policy, timeout time.Duration) (*RedisLimiter, error) {
	if policy.Limit <= 0 {
		return nil, fmt.Errorf("rate limit policy %q: limit must be positive", policy.Name)
	}
	if policy.Window <= 0 {
		return nil, fmt.Errorf("rate limit policy %q: window must be positive", policy.Name)
	}
	switch policy.Algorithm {
	case FixedWindow, SlidingWindow:
	default:
		return nil, fmt.Errorf("rate limit policy %q: unknown algorithm %q", policy.Name, policy.Algorithm)
	}
	if policy.KeyPrefix == "" {
		policy.KeyPrefix = "ratelimit"
	}
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}

	return &RedisLimiter{
		client:  client,
		policy:  policy,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Policy возвращает политику лимитера
func (l *RedisLimiter) Policy() Policy {
	return l.policy
}

// Key возвращает ключ счетчика в Redis для идентификатора вызывающего
func (l *RedisLimiter) Key(key string) string {
	return strings.Join([]string{l.policy.KeyPrefix, l.policy.Name, key}, ":")
}

// Allow атомарно учитывает запрос и возвращает решение
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	windowMs := l.policy.Window.Milliseconds()
	redisKey := []string{l.Key(key)}

	var (
		res []int64
		err error
	)
	switch l.policy.Algorithm {
	case FixedWindow:
		res, err = fixedWindowScript.Run(ctx, l.client, redisKey, windowMs, l.policy.Limit).Int64Slice()
	default:
		now := l.now().UnixMilli()
		member := fmt.Sprintf("%d-%s", now, uuid.NewString())
		res, err = slidingWindowScript.Run(ctx, l.client, redisKey, now, windowMs, l.policy.Limit, member, now-windowMs).Int64Slice()
	}
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", l.policy.Name, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected script result %v", l.policy.Name, res)
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     l.policy.Limit,
		Remaining: int(res[1]),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}

// FailurePolicy поведение при недоступности хранилища счетчиков
type FailurePolicy int

const (
	// FailOpen пропускает запрос
	FailOpen FailurePolicy = iota
	// FailClosed отвечает 500
	FailClosed
)

// ParseFailurePolicy разбирает значение rate_limiting.failure_policy
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}
