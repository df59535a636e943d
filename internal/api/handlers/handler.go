// handler.go — APIHandler собирает доменные handlers и монтирует их
// маршруты на chi-роутер.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandler — единая точка регистрации всех endpoints.
type APIHandler struct {
	files    *FilesHandler
	system   *SystemHandler
	health   *HealthHandler
	contract []byte
	metrics  http.Handler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
// contract — OpenAPI контракт для GET /api/openapi.yaml.
func NewAPIHandler(
	files *FilesHandler,
	system *SystemHandler,
	health *HealthHandler,
	contract []byte,
	metrics http.Handler,
) *APIHandler {
	return &APIHandler{
		files:    files,
		system:   system,
		health:   health,
		contract: contract,
		metrics:  metrics,
	}
}

// Routes регистрирует маршруты API, health и метрик.
func (h *APIHandler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// --- File Operations ---
		r.Post("/upload-wavs", h.files.UploadWavs)
		r.Get("/list-original-wavs", h.files.ListOriginal)
		r.Get("/list-uploaded-wavs", h.files.ListOriginal)
		r.Get("/list-renamed-wavs", h.files.ListRenamed)
		r.Get("/list-converted-wavs", h.files.ListConverted)
		r.Get("/files/{id}", h.files.GetFile)
		r.Post("/rename-wav/{id}", h.files.RenameWav)
		r.Post("/convert-selected-to-m4a", h.files.ConvertSelected)
		r.Get("/download/{filename}", h.files.Download)
		r.Delete("/delete-file/{id}", h.files.DeleteFile)

		// --- System ---
		r.Get("/hello", h.system.Hello)
		r.Get("/info", h.system.GetInfo)
		r.Get("/openapi.yaml", h.serveContract)
	})

	// --- Health ---
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)

	// --- Metrics ---
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
}

func (h *APIHandler) serveContract(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.contract)
}
