// metrics.go — Prometheus HTTP метрики интерфейса советника.
// Регистрирует метрики: cw_http_requests_total, cw_http_request_duration_seconds.
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
			Name: "cw_http_requests_total",
			Help: "Общее количество HTTP-запросов к интерфейсу советника",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cw_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к интерфейсу советника в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет идентификаторы в пути на {id}, а неизвестные
// пути — на "other", чтобы число серий метрик оставалось ограниченным.
// /mes-jeunes/8f1c… → /mes-jeunes/{id}
func normalizePath(path string) string {
	switch path {
	case "/", "/agenda", "/messagerie", "/reaffectation",
		"/login", "/logout", "/auth/callback", "/set-language",
		"/api/auth/session", "/api/auth/federated-logout",
		"/health/live", "/health/ready", "/metrics":
		return path
	}

	prefixes := []struct {
		prefix string
		result string
	}{
		{"/mes-jeunes/", "/mes-jeunes/{id}"},
		{"/login/", "/login/{provider}"},
		{"/static/", "/static/*"},
	}

	for _, p := range prefixes {
		if strings.HasPrefix(path, p.prefix) && len(path) > len(p.prefix) {
			return p.result
		}
	}

	return "other"
}
