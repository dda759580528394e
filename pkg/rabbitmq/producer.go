package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Producer публикует сообщения в exchange с подтверждениями брокера
type Producer struct {
	mu      sync.Mutex
	conn    *Connection
	channel *amqp091.Channel
	config  *Config
}

// NewProducer создает продюсера с собственным каналом в confirm mode
func NewProducer(conn *Connection, config *Config) (*Producer, error) {
	p := &Producer{conn: conn, config: config}
	channel, err := p.openChannel()
	if err != nil {
		return nil, err
	}
	p.channel = channel
	return p, nil
}

func (p *Producer) openChannel() (*amqp091.Channel, error) {
	channel, err := p.conn.NewChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to open producer channel: %w", err)
	}
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to enable confirm mode: %w", err)
	}
	return channel, nil
}

// confirmChannel возвращает канал продюсера, заново открывая его после обрыва соединения
func (p *Producer) confirmChannel() (*amqp091.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}
	channel, err := p.openChannel()
	if err != nil {
		return nil, err
	}
	p.channel = channel
	return channel, nil
}

// Publish публикует сообщение и ждет подтверждения не дольше ConfirmTimeout
func (p *Producer) Publish(ctx context.Context, body []byte, options ...PublishOption) error {
	opts := &PublishOptions{
		Exchange: p.config.Exchange,
	}
	for _, option := range options {
		option(opts)
	}

	channel, err := p.confirmChannel()
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		MessageId:    opts.MessageID,
		Headers:      opts.Headers,
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.ConfirmTimeout)
	defer cancel()

	confirmation, err := channel.PublishWithDeferredConfirmWithContext(ctx,
		opts.Exchange,
		opts.RoutingKey,
		opts.Mandatory,
		false,
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("message rejected by broker")
	}

	return nil
}

// Close закрывает канал продюсера
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	return err
}

// PublishOptions представляет опции для публикации сообщения
type PublishOptions struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	MessageID  string
	Headers    amqp091.Table
}

// PublishOption функция для настройки опций публикации
type PublishOption func(*PublishOptions)

// WithExchange устанавливает exchange
func WithExchange(exchange string) PublishOption {
	return func(opts *PublishOptions) {
		opts.Exchange = exchange
	}
}

// WithRoutingKey устанавливает routing key
func WithRoutingKey(routingKey string) PublishOption {
	return func(opts *PublishOptions) {
		opts.RoutingKey = routingKey
	}
}

// WithMandatory устанавливает mandatory флаг
func WithMandatory(mandatory bool) PublishOption {
	return func(opts *PublishOptions) {
		opts.Mandatory = mandatory
	}
}

// WithMessageID устанавливает message id
func WithMessageID(id string) PublishOption {
	return func(opts *PublishOptions) {
		opts.MessageID = id
	}
}

// WithHeaders устанавливает заголовки
func WithHeaders(headers amqp091.Table) PublishOption {
	return func(opts *PublishOptions) {
		opts.Headers = headers
	}
}
