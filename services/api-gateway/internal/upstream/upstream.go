// Package upstream описывает внутренние сервисы, на которые шлюз проксирует запросы
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"SocialMeshPlatform/pkg/logger"
)

// Upstream внутренний сервис с одним или несколькими инстансами
type Upstream struct {
	name    string
	targets []*url.URL
	index   uint64
	client  *http.Client
	log     logger.Logger
}

// New разбирает список адресов через запятую. Нужен хотя бы один адрес.
func New(name, rawURLs string, log logger.Logger) (*Upstream, error) {
	var targets []*url.URL
	for _, raw := range strings.Split(rawURLs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s url %q: %w", name, raw, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid %s url %q: scheme and host are required", name, raw)
		}
		targets = append(targets, u)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no addresses configured for %s", name)
	}

	return &Upstream{
		name:    name,
		targets: targets,
		client:  &http.Client{},
		log:     log,
	}, nil
}

// Name имя сервиса
func (u *Upstream) Name() string {
	return u.name
}

// Targets адреса инстансов
func (u *Upstream) Targets() []*url.URL {
	return u.targets
}

// Next выбирает инстанс по кругу
func (u *Upstream) Next() *url.URL {
	idx := atomic.AddUint64(&u.index, 1) - 1
	selected := u.targets[idx%uint64(len(u.targets))]

	u.log.Debug("Selected upstream instance",
		logger.String("upstream", u.name),
		logger.String("address", selected.Host),
		logger.Int("total_instances", len(u.targets)))

	return selected
}

// HealthCheck опрашивает /live каждого инстанса. Сервис здоров, если отвечает хотя бы один.
func (u *Upstream) HealthCheck(ctx context.Context) error {
	var lastErr error
	for _, target := range u.targets {
		if err := u.checkLive(ctx, target); err != nil {
			u.log.Warn("Upstream instance unavailable",
				logger.String("upstream", u.name),
				logger.String("address", target.Host),
				logger.Error(err))
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (u *Upstream) checkLive(ctx context.Context, target *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.JoinPath("/live").String(), nil)
	if err != nil {
		return err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s responded %d", target.Host, resp.StatusCode)
	}
	return nil
}
