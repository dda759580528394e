package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"SocialMeshPlatform/pkg/logger"
)

// ErrCircuitOpen запрос отклонен без обращения к сервису
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State состояние circuit breaker
type State int

const (
	// StateClosed запросы проходят
	StateClosed State = iota
	// StateOpen запросы отклоняются
	StateOpen
	// StateHalfOpen пропускается ограниченное число пробных запросов
	StateHalfOpen
)

// String возвращает строковое представление состояния
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerObserver получает переходы в open и обратно, используется для метрик
type BreakerObserver interface {
	SetUpstreamOpen(upstream string, open bool)
}

// BreakerSettings параметры circuit breaker
type BreakerSettings struct {
	FailureThreshold int           // последовательных ошибок до открытия
	FailureWindow    time.Duration // ошибки старше окна забываются
	RecoveryTimeout  time.Duration // время в open до пробных запросов
	HalfOpenAttempts int
}

// DefaultBreakerSettings значения по умолчанию
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		FailureWindow:    30 * time.Second,
		RecoveryTimeout:  10 * time.Second,
		HalfOpenAttempts: 1,
	}
}

// CircuitBreaker http.RoundTripper, который перестает звонить в недоступный сервис
type CircuitBreaker struct {
	name     string
	next     http.RoundTripper
	settings BreakerSettings
	observer BreakerObserver
	log      logger.Logger
	now      func() time.Time

	mtx             sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	halfOpenCount   int
	stateChangeTime time.Time
}

// NewCircuitBreaker оборачивает next. observer может быть nil.
func NewCircuitBreaker(name string, next http.RoundTripper, settings BreakerSettings, observer BreakerObserver, log logger.Logger) *CircuitBreaker {
	defaults := DefaultBreakerSettings()
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = defaults.FailureThreshold
	}
	if settings.FailureWindow <= 0 {
		settings.FailureWindow = defaults.FailureWindow
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if settings.HalfOpenAttempts <= 0 {
		settings.HalfOpenAttempts = defaults.HalfOpenAttempts
	}
	if next == nil {
		next = http.DefaultTransport
	}

	return &CircuitBreaker{
		name:     name,
		next:     next,
		settings: settings,
		observer: observer,
		log:      log,
		now:      time.Now,
		state:    StateClosed,
	}
}

// State текущее состояние
func (cb *CircuitBreaker) State() State {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()
	return cb.state
}

// RoundTrip реализует http.RoundTripper
func (cb *CircuitBreaker) RoundTrip(req *http.Request) (*http.Response, error) {
	if !cb.allowRequest() {
		cb.log.Warn("Circuit breaker open, request rejected",
			logger.String("circuit_breaker", cb.name),
			logger.String("path", req.URL.Path),
			logger.CtxField(req.Context()))
		return nil, fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}

	resp, err := cb.next.RoundTrip(req)
	cb.onRequestComplete(isFailure(resp, err))
	return resp, err
}

// isFailure считает ошибкой транспорт и ответы балансировщика о недоступности.
// Обычный 500 от сервиса означает, что сервис жив.
func isFailure(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()

	now := cb.now()

	switch cb.state {
	case StateClosed:
		if now.Sub(cb.lastFailureTime) > cb.settings.FailureWindow {
			cb.failureCount = 0
		}
		return true
	case StateOpen:
		if now.Sub(cb.stateChangeTime) < cb.settings.RecoveryTimeout {
			return false
		}
		cb.transition(StateHalfOpen, now)
		cb.halfOpenCount = 1
		return true
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.settings.HalfOpenAttempts {
			return false
		}
		cb.halfOpenCount++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) onRequestComplete(failed bool) {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()

	now := cb.now()

	if failed {
		cb.failureCount++
		cb.lastFailureTime = now

		switch {
		case cb.state == StateHalfOpen:
			cb.transition(StateOpen, now)
		case cb.state == StateClosed && cb.failureCount >= cb.settings.FailureThreshold:
			cb.log.Warn("Circuit breaker tripped",
				logger.String("circuit_breaker", cb.name),
				logger.Int("failure_count", cb.failureCount),
				logger.Int("failure_threshold", cb.settings.FailureThreshold))
			cb.transition(StateOpen, now)
		}
		return
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed, now)
	}
	cb.failureCount = 0
}

// transition вызывается под mtx
func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	cb.state = to
	cb.stateChangeTime = now
	cb.halfOpenCount = 0
	if to == StateClosed {
		cb.failureCount = 0
	}

	cb.log.Info("Circuit breaker state changed",
		logger.String("circuit_breaker", cb.name),
		logger.String("old_state", from.String()),
		logger.String("new_state", to.String()))

	if cb.observer != nil {
		cb.observer.SetUpstreamOpen(cb.name, to == StateOpen)
	}
}
