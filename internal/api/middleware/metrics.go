// metrics.go — Prometheus метрики wavpipe.
// HTTP метрики: wp_http_requests_total, wp_http_request_duration_seconds.
// Бизнес-метрики экспортируются и обновляются из сервисного слоя.
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
			Name: "wp_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wp_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// FilesTotal — текущее количество записей по статусам (gauge).
	FilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wp_files_total",
			Help: "Текущее количество записей о файлах по статусам",
		},
		[]string{"status"},
	)

	// OperationsTotal — общее количество операций над файлами.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wp_operations_total",
			Help: "Общее количество операций над файлами",
		},
		[]string{"operation", "result"},
	)

	// ConversionDuration — длительность одной конвертации.
	ConversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wp_conversion_duration_seconds",
			Help:    "Длительность конвертации WAV → M4A в секундах",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// ConversionsInFlight — количество выполняющихся конвертаций.
	ConversionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wp_conversions_in_flight",
			Help: "Количество конвертаций, выполняющихся в данный момент",
		},
	)

	// SweepRunsTotal — количество запусков сборщика осиротевших файлов.
	SweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wp_sweep_runs_total",
			Help: "Количество запусков сборщика осиротевших файлов",
		},
	)

	// SweepFilesDeleted — количество удалённых осиротевших файлов.
	SweepFilesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wp_sweep_files_deleted_total",
			Help: "Количество удалённых осиротевших файлов",
		},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем id и имена файлов на шаблоны)
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

// staticRoutes — маршруты без параметров, попадающие в лейбл как есть.
var staticRoutes = map[string]bool{
	"/health/live":                 true,
	"/health/ready":                true,
	"/metrics":                     true,
	"/api/hello":                   true,
	"/api/info":                    true,
	"/api/openapi.yaml":            true,
	"/api/upload-wavs":             true,
	"/api/list-original-wavs":      true,
	"/api/list-uploaded-wavs":      true,
	"/api/list-renamed-wavs":       true,
	"/api/list-converted-wavs":     true,
	"/api/convert-selected-to-m4a": true,
}

// parameterizedRoutes — префиксы маршрутов с параметром в последнем сегменте.
var parameterizedRoutes = []struct {
	prefix   string
	template string
}{
	{"/api/rename-wav/", "/api/rename-wav/{id}"},
	{"/api/delete-file/", "/api/delete-file/{id}"},
	{"/api/files/", "/api/files/{id}"},
	{"/api/download/", "/api/download/{filename}"},
}

// normalizePath заменяет id и имена файлов в пути на шаблоны для
// предотвращения взрывного роста кардинальности метрик.
// /api/rename-wav/a1b2c3d4-e5f6-7890-abcd-ef1234567890 → /api/rename-wav/{id}
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	for _, route := range parameterizedRoutes {
		if rest, ok := strings.CutPrefix(path, route.prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return route.template
		}
	}

	if strings.HasPrefix(path, "/api/") {
		return "/api/other"
	}
	// Статика фронтенда
	return "/static"
}
