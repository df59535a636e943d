// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"time"

	"github.com/bigkaa/wavpipe/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// serviceName — имя сервиса в ответах health и info.
const serviceName = "wavpipe"

// BinaryResolver — поиск исполняемого файла конвертера.
type BinaryResolver interface {
	Resolve() (string, error)
}

// DirChecker — проверка директорий на запись.
type DirChecker interface {
	CheckWritable() map[string]error
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version  string
	dirs     DirChecker
	resolver BinaryResolver
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(dirs DirChecker, resolver BinaryResolver) *HealthHandler {
	return &HealthHandler{
		version:  config.Version,
		dirs:     dirs,
		resolver: resolver,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: директории uploads и converted доступны на запись,
// конвертер найден.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	checks := make(map[string]any, 3)
	for name, err := range h.dirs.CheckWritable() {
		if err != nil {
			checks[name] = map[string]any{
				"status":  statusFail,
				"message": "Директория недоступна для записи: " + err.Error(),
			}
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	if path, err := h.resolver.Resolve(); err != nil {
		checks["transcoder"] = map[string]any{
			"status":  statusFail,
			"message": err.Error(),
		}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["transcoder"] = map[string]any{
			"status": "ok",
			"binary": path,
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks":    checks,
	})
}
