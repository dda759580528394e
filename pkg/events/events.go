package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/rabbitmq"
)

// Топики событий
const (
	TopicPostCreated   = "post.created"
	TopicPostDeleted   = "post.deleted"
	TopicMediaUploaded = "media.uploaded"
)

// Envelope обертка любого события на шине
type Envelope struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurred_at"`
	Source     string          `json:"source"`
	Payload    json.RawMessage `json:"payload"`
}

// Decode разбирает payload в v
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Topic, err)
	}
	return nil
}

// PostCreated payload события post.created
type PostCreated struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"mediaIds,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostDeleted payload события post.deleted
type PostDeleted struct {
	PostID   string   `json:"postId"`
	UserID   string   `json:"userId"`
	MediaIDs []string `json:"mediaIds,omitempty"`
}

// MediaUploaded payload события media.uploaded
type MediaUploaded struct {
	MediaID string `json:"mediaId"`
	UserID  string `json:"userId"`
	URL     string `json:"url"`
}

// Publisher публикует событие. Доставка at-least-once, без подтверждения от потребителей.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// BrokerProducer отправляет сырое сообщение в брокер
type BrokerProducer interface {
	Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error
}

// Observer получает исходы публикации и обработки, используется для метрик
type Observer interface {
	ObserveEvent(topic, stage, result string)
}

// RabbitPublisher публикует события в topic exchange, routing key = топик
type RabbitPublisher struct {
	producer BrokerProducer
	source   string
	log      logger.Logger
	observer Observer
	now      func() time.Time
}

// NewPublisher создает издателя от имени сервиса source
func NewPublisher(producer BrokerProducer, source string, log logger.Logger) *RabbitPublisher {
	return &RabbitPublisher{
		producer: producer,
		source:   source,
		log:      log,
		now:      time.Now,
	}
}

// SetObserver подключает наблюдателя публикаций
func (p *RabbitPublisher) SetObserver(obs Observer) {
	p.observer = obs
}

func (p *RabbitPublisher) observe(topic, result string) {
	if p.observer != nil {
		p.observer.ObserveEvent(topic, "publish", result)
	}
}

// Publish сериализует payload в конверт и отправляет в брокер
func (p *RabbitPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		OccurredAt: p.now().UTC(),
		Source:     p.source,
		Payload:    data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := p.producer.Publish(ctx, body,
		rabbitmq.WithRoutingKey(topic),
		rabbitmq.WithMessageID(env.ID),
	); err != nil {
		p.observe(topic, "error")
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.observe(topic, "ok")

	p.log.Debug("Event published",
		logger.String("topic", topic),
		logger.String("event_id", env.ID),
		logger.CtxField(ctx))
	return nil
}
