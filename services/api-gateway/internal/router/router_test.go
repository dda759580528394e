package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/ratelimit"
	"SocialMeshPlatform/pkg/token"
	"SocialMeshPlatform/services/api-gateway/internal/middleware"
	"SocialMeshPlatform/services/api-gateway/internal/proxy"
	"SocialMeshPlatform/services/api-gateway/internal/upstream"
)

type backend struct {
	srv   *httptest.Server
	calls int64
	last  atomic.Value
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&b.calls, 1)
		b.last.Store(r.URL.Path + "|" + r.Header.Get(identity.HeaderUserID))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) Calls() int64 {
	return atomic.LoadInt64(&b.calls)
}

type gateway struct {
	handler  http.Handler
	identity *backend
	posts    *backend
	tokens   *token.Manager
}

func newGateway(t *testing.T, globalLimit, sensitiveLimit int) *gateway {
	t.Helper()
	log := logger.NewNop()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	global, err := ratelimit.NewRedisLimiter(client, ratelimit.Policy{
		Name: "global", Algorithm: ratelimit.SlidingWindow, Limit: globalLimit, Window: time.Second, KeyPrefix: "gateway:ratelimit:global",
	}, time.Second)
	require.NoError(t, err)
	sensitive, err := ratelimit.NewRedisLimiter(client, ratelimit.Policy{
		Name: "sensitive", Algorithm: ratelimit.FixedWindow, Limit: sensitiveLimit, Window: 15 * time.Minute, KeyPrefix: "gateway:ratelimit:sensitive",
	}, time.Second)
	require.NoError(t, err)

	tokens, err := token.NewManager("gateway-test-secret", "identity-service", time.Hour)
	require.NoError(t, err)

	g := &gateway{identity: newBackend(t), posts: newBackend(t), tokens: tokens}
	proxyTo := func(name string, b *backend) http.Handler {
		up, err := upstream.New(name, b.srv.URL, log)
		require.NoError(t, err)
		return proxy.New(up, http.DefaultTransport, log)
	}

	r := chi.NewRouter()
	Mount(r, Gates{
		Global:         ratelimit.Middleware(global, ratelimit.FailOpen, log, ratelimit.WithKeyFunc(ratelimit.ForwardedIP(nil))),
		Sensitive:      ratelimit.Middleware(sensitive, ratelimit.FailOpen, log, ratelimit.WithKeyFunc(ratelimit.ForwardedIP(nil))),
		SensitivePaths: []string{"/v1/auth/register", "/v1/auth/login"},
		Auth:           middleware.Auth(tokens, log),
	}, Upstreams{
		Identity: proxyTo("identity-service", g.identity),
		Post:     proxyTo("post-service", g.posts),
		Media:    proxyTo("media-service", g.posts),
		Search:   proxyTo("search-service", g.posts),
	})
	g.handler = r
	return g
}

func (g *gateway) do(method, path, bearer, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	req.RemoteAddr = ip + ":40000"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	g.handler.ServeHTTP(w, req)
	return w
}

// TestGlobalLimit одиннадцатый запрос за секунду с одного IP получает 429 и не доходит до сервиса
func TestGlobalLimit(t *testing.T) {
	g := newGateway(t, 10, 100)
	access, _, err := g.tokens.Issue(identity.Identity{UserID: "user-1"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		w := g.do(http.MethodGet, "/v1/posts/all-posts", access, "10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := g.do(http.MethodGet, "/v1/posts/all-posts", access, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, int64(10), g.posts.Calls())

	// Другой IP не затронут
	w = g.do(http.MethodGet, "/v1/posts/all-posts", access, "10.0.0.2")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSensitiveLimit_OnlyOnDesignatedPaths(t *testing.T) {
	g := newGateway(t, 1000, 2)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, g.do(http.MethodPost, "/v1/auth/login", "", "10.0.0.1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, g.do(http.MethodPost, "/v1/auth/login", "", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, g.do(http.MethodPost, "/v1/auth/register", "", "10.0.0.1").Code)

	// refresh-token не входит в чувствительные маршруты
	assert.Equal(t, http.StatusOK, g.do(http.MethodPost, "/v1/auth/refresh-token", "", "10.0.0.1").Code)
	assert.Equal(t, int64(3), g.identity.Calls())
}

func TestAuthGate(t *testing.T) {
	g := newGateway(t, 1000, 100)

	w := g.do(http.MethodPost, "/v1/posts/create-post", "", "10.0.0.1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = g.do(http.MethodGet, "/v1/search/posts?query=go", "not-a-token", "10.0.0.1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, g.posts.Calls())

	access, _, err := g.tokens.Issue(identity.Identity{UserID: "user-7", Username: "bob"})
	require.NoError(t, err)
	w = g.do(http.MethodPost, "/v1/posts/create-post", access, "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/posts/create-post|user-7", g.posts.last.Load())
}

func TestAuthRoutes_NoTokenRequired(t *testing.T) {
	g := newGateway(t, 1000, 100)

	w := g.do(http.MethodPost, "/v1/auth/register", "", "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/auth/register|", g.identity.last.Load())
}

// TestLimiterBeforeAuth лимит считается и для неаутентифицированных запросов
func TestLimiterBeforeAuth(t *testing.T) {
	g := newGateway(t, 2, 100)

	assert.Equal(t, http.StatusUnauthorized, g.do(http.MethodGet, "/v1/posts/all-posts", "", "10.0.0.9").Code)
	assert.Equal(t, http.StatusUnauthorized, g.do(http.MethodGet, "/v1/posts/all-posts", "", "10.0.0.9").Code)
	assert.Equal(t, http.StatusTooManyRequests, g.do(http.MethodGet, "/v1/posts/all-posts", "", "10.0.0.9").Code)
}

func TestUnknownRoute(t *testing.T) {
	g := newGateway(t, 1000, 100)

	w := g.do(http.MethodGet, "/v1/unknown/thing", "", "10.0.0.1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, g.posts.Calls())
	assert.Zero(t, g.identity.Calls())
}

// TestGlobalLimit_ForwardedHeadersIgnored подмена X-Forwarded-For и X-Real-IP не дает обойти лимит
func TestGlobalLimit_ForwardedHeadersIgnored(t *testing.T) {
	g := newGateway(t, 10, 100)
	access, _, err := g.tokens.Issue(identity.Identity{UserID: "user-1"})
	require.NoError(t, err)

	rejected := 0
	for i := 0; i < 30; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/posts/all-posts", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("Authorization", "Bearer "+access)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i))
		w := httptest.NewRecorder()
		g.handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			rejected++
		}
	}

	assert.Equal(t, 20, rejected)
	assert.Equal(t, int64(10), g.posts.Calls())
}

// TestSensitiveLimit_ForwardedHeadersIgnored подмена заголовка не обходит лимит на вход
func TestSensitiveLimit_ForwardedHeadersIgnored(t *testing.T) {
	g := newGateway(t, 1000, 3)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{}`))
		req.RemoteAddr = "10.0.0.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		w := httptest.NewRecorder()
		g.handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{200, 200, 200, 429, 429}, codes)
	assert.Equal(t, int64(3), g.identity.Calls())
}
