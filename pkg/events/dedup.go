package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator помечает обработанные события, чтобы повторная доставка не вызывала обработчик.
// Отметка ставится только после успешной обработки: при ошибке или падении процесса
// повторная доставка снова дойдет до обработчика.
type Deduplicator struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewDeduplicator создает Deduplicator; consumer разделяет пространства ключей разных сервисов
func NewDeduplicator(client redis.Cmdable, consumer string, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduplicator{
		client:  client,
		prefix:  "events:processed:" + consumer + ":",
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
	}
}

// Processed сообщает, было ли событие уже успешно обработано
func (d *Deduplicator) Processed(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	n, err := d.client.Exists(ctx, d.prefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed ставит отметку с TTL. Не зависит от отмены ctx обработчика:
// обработка уже завершилась, и отметка не должна потеряться из-за истекшего дедлайна.
func (d *Deduplicator) MarkProcessed(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	return d.client.Set(ctx, d.prefix+eventID, 1, d.ttl).Err()
}
