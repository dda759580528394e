package events

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"

	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/rabbitmq"
)

// Handler обрабатывает событие; должен быть идемпотентным
type Handler func(ctx context.Context, env Envelope) error

// Subscriber привязывает очередь сервиса к топикам и раздает события обработчикам
type Subscriber struct {
	consumer *rabbitmq.Consumer
	dedup    *Deduplicator
	log      logger.Logger
	observer Observer
}

// NewSubscriber создает подписчика. dedup может быть nil.
func NewSubscriber(consumer *rabbitmq.Consumer, dedup *Deduplicator, log logger.Logger) *Subscriber {
	return &Subscriber{consumer: consumer, dedup: dedup, log: log}
}

// SetObserver подключает наблюдателя обработки
func (s *Subscriber) SetObserver(obs Observer) {
	s.observer = obs
}

func (s *Subscriber) observe(topic, result string) {
	if s.observer != nil {
		s.observer.ObserveEvent(topic, "consume", result)
	}
}

// Subscribe регистрирует очередь queue с обработчиками по топикам
func (s *Subscriber) Subscribe(queue string, handlers map[string]Handler) {
	topics := make([]string, 0, len(handlers))
	for topic := range handlers {
		topics = append(topics, topic)
	}
	s.consumer.RegisterHandler(queue, topics, s.MessageHandler(handlers))
}

// Start блокируется до отмены ctx
func (s *Subscriber) Start(ctx context.Context) error {
	return s.consumer.Start(ctx)
}

// MessageHandler превращает набор обработчиков событий в обработчик сообщений брокера
func (s *Subscriber) MessageHandler(handlers map[string]Handler) rabbitmq.MessageHandler {
	return func(ctx context.Context, msg amqp091.Delivery) error {
		var env Envelope
		if err := json.Unmarshal(msg.Body, &env); err != nil {
			// Нечитаемое сообщение не станет читаемым при повторе
			s.log.Error("Dropping malformed event",
				logger.String("routing_key", msg.RoutingKey),
				logger.Error(err))
			return nil
		}
		if env.Topic == "" {
			env.Topic = rabbitmq.OriginalRoutingKey(msg)
		}

		handler, ok := handlers[env.Topic]
		if !ok {
			s.log.Warn("No handler for event topic", logger.String("topic", env.Topic))
			return nil
		}

		log := s.log.With(logger.String("topic", env.Topic), logger.String("event_id", env.ID))

		if s.dedup != nil && env.ID != "" {
			done, err := s.dedup.Processed(ctx, env.ID)
			switch {
			case err != nil:
				log.Warn("Dedup store unavailable, processing anyway", logger.Error(err))
			case done:
				log.Debug("Duplicate event skipped")
				s.observe(env.Topic, "duplicate")
				return nil
			}
		}

		if err := handler(ctx, env); err != nil {
			s.observe(env.Topic, "error")
			return err
		}

		if s.dedup != nil && env.ID != "" {
			// Без отметки повтор просто выполнит идемпотентный обработчик еще раз
			if err := s.dedup.MarkProcessed(ctx, env.ID); err != nil {
				log.Warn("Failed to mark event processed", logger.Error(err))
			}
		}

		log.Debug("Event processed")
		s.observe(env.Topic, "ok")
		return nil
	}
}
