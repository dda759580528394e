package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMeshPlatform/pkg/logger"
)

func newDedup(t *testing.T) (*Deduplicator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDeduplicator(client, "search-service", 24*time.Hour), mr
}

func envelopeDelivery(t *testing.T, id, topic string, payload interface{}) amqp091.Delivery {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(Envelope{ID: id, Topic: topic, Source: "post-service", Payload: data})
	require.NoError(t, err)
	return amqp091.Delivery{Exchange: "mesh.events", RoutingKey: topic, Body: body}
}

// TestMessageHandler_Dispatch событие доходит до обработчика своего топика
func TestMessageHandler_Dispatch(t *testing.T) {
	var got PostCreated
	s := NewSubscriber(nil, nil, logger.NewNop())
	h := s.MessageHandler(map[string]Handler{
		TopicPostCreated: func(ctx context.Context, env Envelope) error {
			return env.Decode(&got)
		},
	})

	err := h(context.Background(), envelopeDelivery(t, "e1", TopicPostCreated, PostCreated{PostID: "p1"}))
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PostID)
}

// TestMessageHandler_Duplicate повторная доставка того же события не вызывает обработчик
func TestMessageHandler_Duplicate(t *testing.T) {
	dedup, mr := newDedup(t)
	calls := 0
	s := NewSubscriber(nil, dedup, logger.NewNop())
	h := s.MessageHandler(map[string]Handler{
		TopicPostDeleted: func(ctx context.Context, env Envelope) error {
			calls++
			return nil
		},
	})

	msg := envelopeDelivery(t, "e1", TopicPostDeleted, PostDeleted{PostID: "p1"})
	require.NoError(t, h(context.Background(), msg))
	require.NoError(t, h(context.Background(), msg))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 24*time.Hour, mr.TTL("events:processed:search-service:e1"))
}

// TestMessageHandler_FailureAllowsRedelivery после ошибки обработчика повторная доставка обрабатывается
func TestMessageHandler_FailureAllowsRedelivery(t *testing.T) {
	dedup, mr := newDedup(t)
	calls := 0
	s := NewSubscriber(nil, dedup, logger.NewNop())
	h := s.MessageHandler(map[string]Handler{
		TopicPostCreated: func(ctx context.Context, env Envelope) error {
			calls++
			if calls == 1 {
				return errors.New("db down")
			}
			return nil
		},
	})

	msg := envelopeDelivery(t, "e2", TopicPostCreated, PostCreated{PostID: "p1"})
	assert.Error(t, h(context.Background(), msg))
	assert.False(t, mr.Exists("events:processed:search-service:e2"))
	assert.NoError(t, h(context.Background(), msg))
	assert.Equal(t, 2, calls)
	assert.True(t, mr.Exists("events:processed:search-service:e2"))
}

// TestMessageHandler_DeadlineExceeded обработчик, не успевший до дедлайна, получает событие повторно
func TestMessageHandler_DeadlineExceeded(t *testing.T) {
	dedup, _ := newDedup(t)
	calls := 0
	s := NewSubscriber(nil, dedup, logger.NewNop())
	h := s.MessageHandler(map[string]Handler{
		TopicPostDeleted: func(ctx context.Context, env Envelope) error {
			calls++
			if calls == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	})
	msg := envelopeDelivery(t, "e5", TopicPostDeleted, PostDeleted{PostID: "p1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h(ctx, msg), context.DeadlineExceeded)

	require.NoError(t, h(context.Background(), msg))
	assert.Equal(t, 2, calls)

	require.NoError(t, h(context.Background(), msg))
	assert.Equal(t, 2, calls)
}

// TestMessageHandler_MarkSurvivesCanceledContext отметка ставится даже если ctx отменен к концу обработки
func TestMessageHandler_MarkSurvivesCanceledContext(t *testing.T) {
	dedup, mr := newDedup(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSubscriber(nil, dedup, logger.NewNop())
	h := s.MessageHandler(map[string]Handler{
		TopicPostCreated: func(context.Context, Envelope) error {
			cancel()
			return nil
		},
	})

	require.NoError(t, h(ctx, envelopeDelivery(t, "e6", TopicPostCreated, PostCreated{})))
	assert.True(t, mr.Exists("events:processed:search-service:e6"))
}

// TestMessageHandler_DedupDown недоступный Redis не блокирует обработку
func TestMessageHandler_DedupDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	calls := 0
	s := NewSubscriber(nil, NewDeduplicator(client, "x", time.Hour), logger.NewNop())
	h := s.MessageHandler(map[string]Handler{
		TopicPostCreated: func(ctx context.Context, env Envelope) error {
			calls++
			return nil
		},
	})

	assert.NoError(t, h(context.Background(), envelopeDelivery(t, "e3", TopicPostCreated, PostCreated{})))
	assert.Equal(t, 1, calls)
}

func TestMessageHandler_MalformedAndUnknown(t *testing.T) {
	s := NewSubscriber(nil, nil, logger.NewNop())
	h := s.MessageHandler(map[string]Handler{
		TopicPostCreated: func(ctx context.Context, env Envelope) error {
			t.Fatal("must not be called")
			return nil
		},
	})

	assert.NoError(t, h(context.Background(), amqp091.Delivery{Body: []byte("{broken")}))
	assert.NoError(t, h(context.Background(), envelopeDelivery(t, "e4", TopicMediaUploaded, MediaUploaded{})))
}

func TestDeduplicator_MarkProcessed(t *testing.T) {
	dedup, mr := newDedup(t)
	ctx := context.Background()

	done, err := dedup.Processed(ctx, "id")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, dedup.MarkProcessed(ctx, "id"))
	done, err = dedup.Processed(ctx, "id")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 24*time.Hour, mr.TTL("events:processed:search-service:id"))
}
