package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMeshPlatform/pkg/config"
)

// fakeS3 принимает path-style запросы и хранит объекты в памяти
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newStore(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), config.StorageConfig{
		Bucket:         "media",
		Region:         "us-east-1",
		Endpoint:       srv.URL,
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store_PutDelete(t *testing.T) {
	store, fake := newStore(t)
	ctx := context.Background()

	content := "hello image"
	require.NoError(t, store.Put(ctx, "user-1/abc-photo.png", strings.NewReader(content), int64(len(content)), "image/png"))
	assert.Equal(t, content, fake.objects["/media/user-1/abc-photo.png"])
	assert.Equal(t, "image/png", fake.types["/media/user-1/abc-photo.png"])

	require.NoError(t, store.Delete(ctx, "user-1/abc-photo.png"))
	assert.Empty(t, fake.objects)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestS3Store_URL(t *testing.T) {
	store := &S3Store{bucket: "media", region: "eu-west-1"}
	assert.Equal(t, "https://media.s3.eu-west-1.amazonaws.com/u1/a%20b.png", store.URL("u1/a b.png"))

	store.endpoint = "http://localhost:9000"
	assert.Equal(t, "http://localhost:9000/media/u1/x.png", store.URL("u1/x.png"))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
