package service

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/events"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/mocks"
	"SocialMeshPlatform/services/media-service/internal/domain"
)

type memoryMedia struct {
	mu        sync.Mutex
	items     map[string]domain.Media
	createErr error
	deleteErr error
}

func newMemoryMedia() *memoryMedia {
	return &memoryMedia{items: make(map[string]domain.Media)}
}

func (m *memoryMedia) Create(ctx context.Context, media *domain.Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.items[media.ID] = *media
	return nil
}

func (m *memoryMedia) ListByUser(ctx context.Context, userID string) ([]domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Media{}
	for _, item := range m.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryMedia) FindByIDs(ctx context.Context, ids []string, userID string) ([]domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Media{}
	for _, id := range ids {
		if item, ok := m.items[id]; ok && item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memoryMedia) DeleteByIDs(ctx context.Context, ids []string, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for _, id := range ids {
		if item, ok := m.items[id]; ok && item.UserID == userID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string]string
	putErr    error
	deleteErr error
	deletes   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string]string)}
}

func (s *memoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = string(data)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *memoryStore) URL(key string) string {
	return "http://storage.local/media/" + key
}

type fixture struct {
	svc       *MediaService
	media     *memoryMedia
	store     *memoryStore
	publisher *mocks.RecordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		media:     newMemoryMedia(),
		store:     newMemoryStore(),
		publisher: &mocks.RecordingPublisher{},
	}
	f.svc = NewMediaService(f.media, f.store, f.publisher, 1024, logger.NewNop())
	return f
}

func (f *fixture) upload(t *testing.T, userID, name, content string) *domain.Media {
	t.Helper()
	media, err := f.svc.Upload(context.Background(), UploadInput{
		UserID:      userID,
		FileName:    name,
		ContentType: "image/png",
		Size:        int64(len(content)),
		Body:        strings.NewReader(content),
	})
	require.NoError(t, err)
	return media
}

func envelope(t *testing.T, topic string, payload interface{}) events.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Envelope{ID: uuid.NewString(), Topic: topic, OccurredAt: time.Now(), Source: "post-service", Payload: data}
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	userID := uuid.NewString()

	media := f.upload(t, userID, "holiday.png", "png-bytes")

	assert.True(t, strings.HasPrefix(media.ObjectKey, userID+"/"+media.ID+"-"))
	assert.True(t, strings.HasSuffix(media.ObjectKey, "-holiday.png"))
	assert.Equal(t, "http://storage.local/media/"+media.ObjectKey, media.URL)
	assert.Equal(t, "png-bytes", f.store.objects[media.ObjectKey])
	assert.Contains(t, f.media.items, media.ID)

	require.Len(t, f.publisher.Events, 1)
	assert.Equal(t, events.TopicMediaUploaded, f.publisher.Events[0].Topic)
	assert.Equal(t, events.MediaUploaded{MediaID: media.ID, UserID: userID, URL: media.URL}, f.publisher.Events[0].Payload)
}

func TestUpload_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: uuid.NewString(), FileName: "a.png"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))
	assert.Contains(t, err.Error(), MessageNoFile)

	big := strings.Repeat("x", 1025)
	_, err = f.svc.Upload(context.Background(), UploadInput{
		UserID: uuid.NewString(), FileName: "big.bin", Size: int64(len(big)), Body: strings.NewReader(big),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))

	assert.Empty(t, f.store.objects)
	assert.Empty(t, f.publisher.Events)
}

func TestUpload_MetadataFailureRemovesObject(t *testing.T) {
	f := newFixture(t)
	f.media.createErr = assert.AnError

	_, err := f.svc.Upload(context.Background(), UploadInput{
		UserID: uuid.NewString(), FileName: "a.png", Size: 3, Body: strings.NewReader("abc"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInternal))
	assert.Empty(t, f.store.objects)
	assert.Empty(t, f.publisher.Events)
}

func TestUpload_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = assert.AnError

	_, err := f.svc.Upload(context.Background(), UploadInput{
		UserID: uuid.NewString(), FileName: "a.png", Size: 3, Body: strings.NewReader("abc"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInternal))
	assert.Empty(t, f.media.items)
}

func TestUpload_PublishFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.publisher.Err = assert.AnError

	media := f.upload(t, uuid.NewString(), "a.png", "abc")
	assert.Contains(t, f.media.items, media.ID)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	owner := uuid.NewString()

	first := f.upload(t, owner, "one.png", "1")
	f.svc.now = func() time.Time { return time.Now().Add(time.Minute) }
	second := f.upload(t, owner, "two.png", "2")
	f.upload(t, uuid.NewString(), "other.png", "3")

	items, err := f.svc.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)
}

func TestHandlePostDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.NewString()

	a := f.upload(t, owner, "a.png", "a")
	b := f.upload(t, owner, "b.png", "b")
	keep := f.upload(t, owner, "keep.png", "k")

	env := envelope(t, events.TopicPostDeleted, events.PostDeleted{
		PostID:   uuid.NewString(),
		UserID:   owner,
		MediaIDs: []string{a.ID, b.ID, uuid.NewString()},
	})

	require.NoError(t, f.svc.HandlePostDeleted(ctx, env))
	assert.NotContains(t, f.media.items, a.ID)
	assert.NotContains(t, f.media.items, b.ID)
	assert.Contains(t, f.media.items, keep.ID)
	assert.Equal(t, map[string]string{keep.ObjectKey: "k"}, f.store.objects)

	// Повторная доставка ничего не ломает
	require.NoError(t, f.svc.HandlePostDeleted(ctx, env))
	assert.Contains(t, f.media.items, keep.ID)
}

func TestHandlePostDeleted_ForeignMediaUntouched(t *testing.T) {
	f := newFixture(t)
	owner := uuid.NewString()
	m := f.upload(t, owner, "a.png", "a")

	env := envelope(t, events.TopicPostDeleted, events.PostDeleted{
		PostID: uuid.NewString(), UserID: uuid.NewString(), MediaIDs: []string{m.ID},
	})
	require.NoError(t, f.svc.HandlePostDeleted(context.Background(), env))
	assert.Contains(t, f.media.items, m.ID)
	assert.Contains(t, f.store.objects, m.ObjectKey)
}

func TestHandlePostDeleted_StorageErrorKeepsRows(t *testing.T) {
	f := newFixture(t)
	owner := uuid.NewString()
	m := f.upload(t, owner, "a.png", "a")
	f.store.deleteErr = assert.AnError

	env := envelope(t, events.TopicPostDeleted, events.PostDeleted{
		PostID: uuid.NewString(), UserID: owner, MediaIDs: []string{m.ID},
	})
	assert.ErrorIs(t, f.svc.HandlePostDeleted(context.Background(), env), assert.AnError)
	assert.Contains(t, f.media.items, m.ID)

	f.store.deleteErr = nil
	require.NoError(t, f.svc.HandlePostDeleted(context.Background(), env))
	assert.NotContains(t, f.media.items, m.ID)
}

func TestHandlePostDeleted_NoMediaAndMalformed(t *testing.T) {
	f := newFixture(t)

	env := envelope(t, events.TopicPostDeleted, events.PostDeleted{PostID: uuid.NewString(), UserID: uuid.NewString()})
	assert.NoError(t, f.svc.HandlePostDeleted(context.Background(), env))

	bad := events.Envelope{ID: uuid.NewString(), Topic: events.TopicPostDeleted, Payload: json.RawMessage(`[1,2]`)}
	assert.NoError(t, f.svc.HandlePostDeleted(context.Background(), bad))
	assert.Zero(t, f.store.deletes)
}

// TestSubscriber_Dedup повторная доставка не вызывает обработчик второй раз
func TestSubscriber_Dedup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := events.NewSubscriber(nil, events.NewDeduplicator(client, "media-service", time.Hour), logger.NewNop())
	handle := sub.MessageHandler(f.svc.Handlers())

	owner := uuid.NewString()
	m := f.upload(t, owner, "a.png", "a")
	env := envelope(t, events.TopicPostDeleted, events.PostDeleted{PostID: uuid.NewString(), UserID: owner, MediaIDs: []string{m.ID}})
	body, err := json.Marshal(env)
	require.NoError(t, err)

	msg := amqp091.Delivery{RoutingKey: events.TopicPostDeleted, Body: body}
	require.NoError(t, handle(ctx, msg))
	assert.Equal(t, 1, f.store.deletes)

	require.NoError(t, handle(ctx, msg))
	assert.Equal(t, 1, f.store.deletes)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"photo.png":          "photo.png",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\a.jpg`:  "a.jpg",
		"  spaced name.gif ": "spaced name.gif",
		"":                   "file",
		"/":                  "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeName(in), in)
	}
}
