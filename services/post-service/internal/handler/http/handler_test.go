package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMeshPlatform/pkg/cache"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/mocks"
	"SocialMeshPlatform/services/post-service/internal/domain"
	"SocialMeshPlatform/services/post-service/internal/repository"
	"SocialMeshPlatform/services/post-service/internal/service"
)

type memoryPosts struct {
	mu    sync.Mutex
	order []string
	posts map[string]domain.Post
}

func (m *memoryPosts) Create(ctx context.Context, post *domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[post.ID] = *post
	m.order = append([]string{post.ID}, m.order...)
	return nil
}

func (m *memoryPosts) FindByID(ctx context.Context, id string) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memoryPosts) List(ctx context.Context, offset, limit int) ([]domain.Post, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Post{}
	for i := offset; i < len(m.order) && i < offset+limit; i++ {
		out = append(out, m.posts[m.order[i]])
	}
	return out, int64(len(m.order)), nil
}

func (m *memoryPosts) DeleteOwned(ctx context.Context, id, userID string) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	delete(m.posts, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return &p, nil
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.RecordingPublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	publisher := &mocks.RecordingPublisher{}
	svc := service.NewPostService(&memoryPosts{posts: map[string]domain.Post{}},
		cache.New(client, "post", cache.Options{}, logger.NewNop()), publisher, logger.NewNop())

	r := chi.NewRouter()
	NewHandler(svc, logger.NewNop()).Routes(r, identity.HeaderSource{})
	return r, publisher
}

func call(t *testing.T, h http.Handler, method, path, userID, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(identity.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestRequiresIdentity(t *testing.T) {
	h, _ := newTestRouter(t)

	code, body := call(t, h, http.MethodGet, "/api/posts/all-posts", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, identity.MessageAuthRequired, body["message"])
}

func TestPostLifecycle(t *testing.T) {
	h, publisher := newTestRouter(t)
	alice := uuid.NewString()

	code, body := call(t, h, http.MethodPost, "/api/posts/create-post", alice, `{"content":"hello mesh","mediaIds":["m1"]}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Post created successfully", body["message"])
	postID := body["postId"].(string)

	code, body = call(t, h, http.MethodGet, "/api/posts/all-posts", alice, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["currentPage"])
	assert.Equal(t, float64(1), body["totalPosts"])
	assert.Len(t, body["posts"], 1)

	code, body = call(t, h, http.MethodGet, "/api/posts/post/"+postID, alice, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello mesh", body["post"].(map[string]interface{})["content"])

	// Чужой пользователь не может удалить
	code, body = call(t, h, http.MethodDelete, "/api/posts/delete-post/"+postID, uuid.NewString(), "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Post not found", body["message"])

	code, body = call(t, h, http.MethodDelete, "/api/posts/delete-post/"+postID, alice, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Post deleted successfully", body["message"])

	code, _ = call(t, h, http.MethodGet, "/api/posts/post/"+postID, alice, "")
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, []string{"post.created", "post.deleted"}, publisher.Topics())
}

func TestCreatePost_Validation(t *testing.T) {
	h, publisher := newTestRouter(t)
	alice := uuid.NewString()

	code, body := call(t, h, http.MethodPost, "/api/posts/create-post", alice, `{"content":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, `"content" length must be at least 3 characters long`, body["message"])

	long := strings.Repeat("x", 5001)
	code, _ = call(t, h, http.MethodPost, "/api/posts/create-post", alice, `{"content":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Empty(t, publisher.Topics())
}
