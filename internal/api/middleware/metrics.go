// metrics.go — Prometheus HTTP метрики Link Gateway.
// Регистрирует метрики: lg_http_requests_total, lg_http_request_duration_seconds.
// Бизнес-метрики (lg_streams_total, lg_tokens_minted_total и др.)
// регистрируются в соответствующих пакетах.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lg_http_requests_total",
			Help: "Общее количество HTTP-запросов к Link Gateway",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	// Для стримов длительность включает передачу тела целиком.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lg_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Link Gateway в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов: токен в URL уникален
			// для каждой ссылки и взорвал бы кардинальность
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет токен и имя файла в пути на плейсхолдеры.
// /download/AbCdEf123/report.pdf -> /download/{token}
// /stream/AbCdEf123 -> /stream/{token}
func normalizePath(path string) string {
	switch path {
	case "/health", "/health/live", "/health/ready", "/metrics", "/api/v1/links":
		return path
	}

	for _, prefix := range []string{"/download/", "/stream/", "/play/"} {
		if strings.HasPrefix(path, prefix) {
			return prefix + "{token}"
		}
	}

	return path
}
