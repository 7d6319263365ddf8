// Package health отдаёт состояние зависимостей сервиса для проб Kubernetes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check хранит результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент. Проверка обязана уважать отмену ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

type registration struct {
	checker Checker
	// optional: сбой делает сервис degraded, но не unhealthy.
	optional bool
}

// Option настраивает Handler.
type Option func(*Handler)

// WithTimeout ограничивает время одной проверки.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler обрабатывает health check запросы
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]registration
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewHandler создаёт health handler с версией сборки в ответе.
func NewHandler(version string, opts ...Option) *Handler {
	h := &Handler{
		checkers:  make(map[string]registration),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterChecker регистрирует обязательную проверку.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.register(name, registration{checker: checker})
}

// RegisterOptional регистрирует проверку, сбой которой даёт degraded.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.register(name, registration{checker: checker, optional: true})
}

func (h *Handler) register(name string, reg registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = reg
}

// Evaluate выполняет все проверки параллельно.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	regs := make(map[string]registration, len(h.checkers))
	for k, v := range h.checkers {
		regs[k] = v
	}
	h.mu.RUnlock()

	type result struct {
		name     string
		check    Check
		optional bool
	}
	results := make(chan result, len(regs))
	for name, reg := range regs {
		go func(name string, reg registration) {
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results <- result{name: name, check: reg.checker.Check(checkCtx), optional: reg.optional}
		}(name, reg)
	}

	checks := make(map[string]Check, len(regs))
	overall := StatusHealthy
	for range regs {
		r := <-results
		if r.optional && r.check.Status == StatusUnhealthy {
			r.check.Status = StatusDegraded
		}
		checks[r.name] = r.check

		switch {
		case r.check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case r.check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
}

// ServeHTTP отвечает 503, если хотя бы одна обязательная проверка не прошла.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.Evaluate(r.Context())

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает ready, пока нет unhealthy компонентов.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// PingChecker проверяет доступность через функцию ping (БД, Redis, брокер).
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker создаёт проверку на основе ping.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Check выполняет проверку
func (c *PingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.ping(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// BacklogChecker сообщает degraded, когда очередь выросла выше порога.
type BacklogChecker struct {
	name      string
	threshold int
	size      func(ctx context.Context) (int, error)
}

// NewBacklogChecker создаёт проверку размера очереди.
func NewBacklogChecker(name string, threshold int, size func(ctx context.Context) (int, error)) *BacklogChecker {
	return &BacklogChecker{name: name, threshold: threshold, size: size}
}

// Check выполняет проверку
func (c *BacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	n, err := c.size(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case c.threshold > 0 && n > c.threshold:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("backlog %d exceeds %d", n, c.threshold)
	}
	return check
}
