package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/logger"
)

// KeyFunc определяет идентификатор вызывающего для счетчика
type KeyFunc func(r *http.Request) string

// Observer получает решения лимитера, используется для метрик
type Observer interface {
	ObserveRateLimit(policy string, allowed bool, storeErr error)
}

// MiddlewareOption настраивает Middleware
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	keyFunc  KeyFunc
	observer Observer
}

// WithKeyFunc заменяет ключ по адресу сокета
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.keyFunc = fn
	}
}

// WithObserver подключает наблюдателя решений
func WithObserver(obs Observer) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.observer = obs
	}
}

// Middleware отклоняет запрос с 429 до любой дальнейшей обработки.
// Ошибка хранилища обрабатывается согласно failurePolicy.
func Middleware(limiter Limiter, failurePolicy FailurePolicy, log logger.Logger, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{keyFunc: RemoteIP}
	for _, opt := range opts {
		opt(&o)
	}
	policy := limiter.Policy()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := o.keyFunc(r)

			decision, err := limiter.Allow(r.Context(), key)
			if o.observer != nil {
				o.observer.ObserveRateLimit(policy.Name, err != nil || decision.Allowed, err)
			}
			if err != nil {
				if failurePolicy == FailClosed {
					log.Error("Rate limiter unavailable, rejecting request",
						logger.String("policy", policy.Name),
						logger.String("key", key),
						logger.Error(err),
						logger.CtxField(r.Context()))
					pkgerrors.WriteError(w, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "rate limiter unavailable"))
					return
				}

				log.Warn("Rate limiter unavailable, allowing request",
					logger.String("policy", policy.Name),
					logger.String("key", key),
					logger.Error(err),
					logger.CtxField(r.Context()))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				log.Warn("Rate limit exceeded",
					logger.String("policy", policy.Name),
					logger.String("key", key),
					logger.Int("limit", decision.Limit),
					logger.Duration("window", policy.Window),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.CtxField(r.Context()))

				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision)))
				pkgerrors.WriteError(w, pkgerrors.New(pkgerrors.ErrRateLimited, ""))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// RemoteIP возвращает IP из адреса сокета. Заголовки клиента не учитываются.
func RemoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ForwardedIP доверяет X-Forwarded-For только если запрос пришел от доверенного прокси.
// Список проходится справа налево, доверенные адреса пропускаются, первый недоверенный и есть клиент.
// Без доверенных сетей ключ совпадает с RemoteIP.
func ForwardedIP(trusted []*net.IPNet) KeyFunc {
	isTrusted := func(raw string) bool {
		ip := net.ParseIP(strings.TrimSpace(raw))
		if ip == nil {
			return false
		}
		for _, n := range trusted {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		remote := RemoteIP(r)
		if len(trusted) == 0 || !isTrusted(remote) {
			return remote
		}

		hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !isTrusted(hop) {
				return hop
			}
		}
		return remote
	}
}

// ParseTrustedProxies разбирает список CIDR; одиночный адрес трактуется как /32 или /128
func ParseTrustedProxies(values []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", v)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}
