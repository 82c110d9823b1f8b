// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bigkaa/tglink/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// ReadinessProbe — проверка готовности соединения с Telegram.
type ReadinessProbe interface {
	Ready() bool
}

// RegistrySizer — доступ к размеру реестра токенов.
// Для Redis-хранилища заодно проверяет доступность Redis.
type RegistrySizer interface {
	Size(ctx context.Context) (int, error)
}

// DependencyHealth — состояние внешних зависимостей (dephealth SDK).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints: /health, /health/live, /health/ready.
type HealthHandler struct {
	version string
	// telegram — проверка авторизованного соединения (nil допустим в тестах)
	telegram ReadinessProbe
	// registry — проверка хранилища токенов
	registry RegistrySizer
	// deps — мониторинг зависимостей (nil, если не настроен)
	deps DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(telegram ReadinessProbe, registry RegistrySizer, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		version:  config.Version,
		telegram: telegram,
		registry: registry,
		deps:     deps,
	}
}

// Health обрабатывает GET /health.
// Упрощённый ответ для внешних балансировщиков.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "link-gateway",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: соединение с Telegram, хранилище токенов, зависимости.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	// Проверка соединения с Telegram
	telegramCheck := map[string]any{"status": "ok"}
	if h.telegram != nil && !h.telegram.Ready() {
		telegramCheck = map[string]any{
			"status":  statusFail,
			"message": "Соединение с Telegram не установлено",
		}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	// Проверка хранилища токенов
	registryCheck := map[string]any{"status": "ok"}
	if h.registry != nil {
		size, err := h.registry.Size(r.Context())
		if err != nil {
			registryCheck = map[string]any{
				"status":  statusFail,
				"message": "Хранилище токенов недоступно: " + err.Error(),
			}
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		} else {
			registryCheck["tokens"] = size
		}
	}

	checks := map[string]any{
		"telegram": telegramCheck,
		"registry": registryCheck,
	}

	// Состояние внешних зависимостей: сбой не роняет readiness,
	// но виден в ответе
	if h.deps != nil {
		depsCheck := map[string]any{"status": "ok"}
		for name, ok := range h.deps.Health() {
			if !ok {
				depsCheck["status"] = "degraded"
				if overallStatus == "ok" {
					overallStatus = "degraded"
				}
			}
			depsCheck[name] = ok
		}
		checks["dependencies"] = depsCheck
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "link-gateway",
		"checks":    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
