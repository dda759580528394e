package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"SocialMeshPlatform/services/identity-service/internal/domain"
	"SocialMeshPlatform/services/identity-service/internal/repository"
)

// MockUserRepository мок репозитория пользователей
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// memoryTokens хранилище refresh токенов в памяти с атомарным Take
type memoryTokens struct {
	mu     sync.Mutex
	byHash map[string]domain.RefreshToken
	err    error
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{byHash: make(map[string]domain.RefreshToken)}
}

func (m *memoryTokens) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byHash[token.TokenHash]; ok {
		return repository.ErrDuplicate
	}
	m.byHash[token.TokenHash] = *token
	return nil
}

func (m *memoryTokens) Take(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	token, ok := m.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.byHash, tokenHash)
	return &token, nil
}

func (m *memoryTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, token := range m.byHash {
		if token.Expired(now) {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (m *memoryTokens) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}
