package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"SocialMeshPlatform/pkg/logger"
)

// RetryHeader счетчик повторных доставок сообщения
const RetryHeader = "x-retry-count"

// MessageHandler функция для обработки сообщения
type MessageHandler func(context.Context, amqp091.Delivery) error

type registration struct {
	routingKeys []string
	handler     MessageHandler
}

// Consumer читает durable очереди, привязанные к exchange
type Consumer struct {
	conn     *Connection
	config   *Config
	log      logger.Logger
	mu       sync.Mutex
	handlers map[string]registration
}

// NewConsumer создает нового консьюмера
func NewConsumer(conn *Connection, config *Config, log logger.Logger) *Consumer {
	return &Consumer{
		conn:     conn,
		config:   config,
		log:      log,
		handlers: make(map[string]registration),
	}
}

// RegisterHandler регистрирует обработчик очереди, привязанной к exchange по routingKeys
func (c *Consumer) RegisterHandler(queueName string, routingKeys []string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[queueName] = registration{routingKeys: routingKeys, handler: handler}
}

// Start запускает чтение всех зарегистрированных очередей и блокируется до отмены ctx
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	handlers := make(map[string]registration, len(c.handlers))
	for q, r := range c.handlers {
		handlers[q] = r
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for queueName, reg := range handlers {
		wg.Add(1)
		go func(queue string, reg registration) {
			defer wg.Done()
			for {
				err := c.consume(ctx, queue, reg)
				if ctx.Err() != nil {
					return
				}
				c.log.Error("Consumer stopped, reconnecting",
					logger.String("queue", queue),
					logger.Duration("delay", c.config.ReconnectInterval),
					logger.Error(err))

				select {
				case <-ctx.Done():
					return
				case <-time.After(c.config.ReconnectInterval):
				}
			}
		}(queueName, reg)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// consume обрабатывает сообщения из очереди до закрытия канала или отмены ctx
func (c *Consumer) consume(ctx context.Context, queueName string, reg registration) error {
	channel, err := c.conn.NewChannel()
	if err != nil {
		return err
	}
	defer channel.Close()

	if err := channel.Qos(c.config.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	var args amqp091.Table
	if c.config.DLX != "" {
		args = amqp091.Table{"x-dead-letter-exchange": c.config.DLX}
	}
	if _, err := channel.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	for _, key := range reg.routingKeys {
		if err := channel.QueueBind(queueName, key, c.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", queueName, key, err)
		}
	}

	msgs, err := channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.log.Info("Consumer started",
		logger.String("queue", queueName),
		logger.Strings("routing_keys", reg.routingKeys))

	republish := func(ctx context.Context, msg amqp091.Publishing) error {
		return channel.PublishWithContext(ctx, "", queueName, false, false, msg)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}
			c.handleDelivery(ctx, queueName, msg, reg.handler, republish)
		}
	}
}

// handleDelivery вызывает обработчик и подтверждает сообщение.
// При ошибке сообщение переотправляется с увеличенным x-retry-count,
// после MaxDeliveryRetries уходит в DLX.
func (c *Consumer) handleDelivery(ctx context.Context, queueName string, msg amqp091.Delivery, handler MessageHandler,
	republish func(context.Context, amqp091.Publishing) error) {
	msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := handler(msgCtx, msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.log.Error("Failed to ack delivery", logger.String("queue", queueName), logger.Error(ackErr))
		}
		return
	}

	retries := RetryCount(msg)
	fields := []logger.Field{
		logger.String("queue", queueName),
		logger.String("routing_key", msg.RoutingKey),
		logger.String("message_id", msg.MessageId),
		logger.Int("retry", retries),
		logger.Error(err),
	}

	if retries >= c.config.MaxDeliveryRetries {
		c.log.Error("Message processing failed, sending to DLQ", fields...)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			c.log.Error("Failed to nack delivery", logger.String("queue", queueName), logger.Error(nackErr))
		}
		return
	}

	c.log.Warn("Message processing failed, retrying", fields...)

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[RetryHeader] = int32(retries + 1)

	retry := amqp091.Publishing{
		Headers:      headers,
		ContentType:  msg.ContentType,
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.MessageId,
		Timestamp:    msg.Timestamp,
		Type:         OriginalRoutingKey(msg),
		Body:         msg.Body,
	}
	if pubErr := republish(ctx, retry); pubErr != nil {
		c.log.Error("Failed to republish message, requeueing", logger.String("queue", queueName), logger.Error(pubErr))
		if nackErr := msg.Nack(false, true); nackErr != nil {
			c.log.Error("Failed to nack delivery", logger.String("queue", queueName), logger.Error(nackErr))
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.log.Error("Failed to ack delivery", logger.String("queue", queueName), logger.Error(ackErr))
	}
}

// RetryCount возвращает число повторных доставок из заголовка x-retry-count
func RetryCount(msg amqp091.Delivery) int {
	switch v := msg.Headers[RetryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// OriginalRoutingKey возвращает исходный routing key: при повторной доставке сообщение
// идет через default exchange, и исходный ключ хранится в Type
func OriginalRoutingKey(msg amqp091.Delivery) string {
	if msg.Exchange == "" && msg.Type != "" {
		return msg.Type
	}
	return msg.RoutingKey
}
