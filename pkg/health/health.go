package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker интерфейс для проверки здоровья сервиса
type HealthChecker interface {
	Check(ctx context.Context) *HealthStatus
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Healthy возвращает true, если все зависимости в порядке
func (s *HealthStatus) Healthy() bool {
	return s.Status == StatusHealthy
}

// Status представляет статус зависимости
type Status struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// CheckFunc проверяет одну зависимость
type CheckFunc func(ctx context.Context) error

// DependencyChecker проверяет зарегистрированные зависимости параллельно
type DependencyChecker struct {
	version string
	timeout time.Duration
	mu      sync.RWMutex
	checks  map[string]CheckFunc
}

// NewDependencyChecker создает DependencyChecker. timeout ограничивает каждую проверку.
func NewDependencyChecker(version string, timeout time.Duration) *DependencyChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DependencyChecker{
		version: version,
		timeout: timeout,
		checks:  make(map[string]CheckFunc),
	}
}

// Register добавляет проверку зависимости
func (c *DependencyChecker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Names возвращает имена зарегистрированных зависимостей
func (c *DependencyChecker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check проверяет здоровье сервиса
func (c *DependencyChecker) Check(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		return status
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	status.Services = make(map[string]Status, len(checks))
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			s := Status{Status: StatusHealthy}
			if err := check(checkCtx); err != nil {
				s = Status{Status: StatusUnhealthy, Details: err.Error()}
			}

			mu.Lock()
			status.Services[name] = s
			if s.Status != StatusHealthy {
				status.Status = StatusUnhealthy
			}
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return status
}

// Handler создает HTTP обработчик для /health. Нездоровый сервис отвечает 503.
func Handler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())

		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

// ReadyHandler создает HTTP обработчик для /ready.
// Возвращает 200 если зависимости доступны и сервис готов принимать трафик.
func ReadyHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil && !checker.Check(r.Context()).Healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// LiveHandler создает HTTP обработчик для /live.
// Возвращает 200 если процесс жив.
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// Register вешает /health, /ready и /live на mux
func Register(mux interface {
	Handle(pattern string, handler http.Handler)
}, checker HealthChecker) {
	mux.Handle("/health", Handler(checker))
	mux.Handle("/ready", ReadyHandler(checker))
	mux.Handle("/live", LiveHandler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
