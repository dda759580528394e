// Package mocks содержит testify моки общих интерфейсов для тестов сервисов
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"SocialMeshPlatform/pkg/events"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/ratelimit"
)

// MockPublisher имитирует events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

// MockVerifier имитирует token.Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(token string) (identity.Identity, error) {
	args := m.Called(token)
	return args.Get(0).(identity.Identity), args.Error(1)
}

// MockLimiter имитирует ratelimit.Limiter
type MockLimiter struct {
	mock.Mock
	policy ratelimit.Policy
}

// NewMockLimiter создает мок лимитера с политикой
func NewMockLimiter(policy ratelimit.Policy) *MockLimiter {
	return &MockLimiter{policy: policy}
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(ratelimit.Decision), args.Error(1)
}

func (m *MockLimiter) Policy() ratelimit.Policy {
	return m.policy
}

// RecordingPublisher запоминает опубликованные события без ожиданий
type RecordingPublisher struct {
	mu     sync.Mutex
	Err    error
	Events []PublishedEvent
}

// PublishedEvent одна публикация
type PublishedEvent struct {
	Topic   string
	Payload interface{}
}

func (p *RecordingPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, PublishedEvent{Topic: topic, Payload: payload})
	return nil
}

// Topics возвращает топики опубликованных событий по порядку
func (p *RecordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		topics = append(topics, e.Topic)
	}
	return topics
}

var (
	_ events.Publisher  = (*MockPublisher)(nil)
	_ events.Publisher  = (*RecordingPublisher)(nil)
	_ ratelimit.Limiter = (*MockLimiter)(nil)
)
