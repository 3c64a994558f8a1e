// metrics.go — Prometheus HTTP метрики Storage Server.
// Регистрирует метрики: ss_http_requests_total, ss_http_request_duration_seconds.
// Бизнес-метрики (операции, sweep, отложенное удаление) регистрируются
// здесь же и обновляются из сервисного слоя.
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
			Name: "ss_http_requests_total",
			Help: "Общее количество HTTP-запросов к Storage Server",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ss_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Storage Server в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// OperationsTotal — количество файловых операций по результатам.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ss_operations_total",
			Help: "Общее количество файловых операций",
		},
		[]string{"operation", "result"},
	)

	// CleanupRunsTotal — количество запусков cleanup sweep.
	CleanupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ss_cleanup_runs_total",
			Help: "Общее количество запусков cleanup sweep",
		},
		[]string{"status"},
	)

	// CleanupDeletedTotal — количество блобов, удалённых sweep-ом.
	CleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_cleanup_deleted_total",
		Help: "Общее количество блобов, удалённых cleanup sweep",
	})

	// CleanupDurationSeconds — длительность выполнения sweep.
	CleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ss_cleanup_duration_seconds",
		Help:    "Длительность выполнения cleanup sweep в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	// ReaperTasksTotal — задачи отложенного удаления по результатам.
	ReaperTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ss_reaper_tasks_total",
			Help: "Общее количество задач отложенного удаления",
		},
		[]string{"result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (job_id заменяется на {job_id} для предотвращения кардинальности)
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

// normalizePath заменяет сегмент job_id на плейсхолдер, чтобы лейблы
// метрик не росли по одному на каждый загруженный блоб.
// /download/job-123 → /download/{job_id}
func normalizePath(path string) string {
	for _, prefix := range []string{"/download/", "/delete/", "/check/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{job_id}"
		}
	}
	return path
}
