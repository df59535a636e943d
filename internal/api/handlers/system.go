// system.go — обработчики GET /api/info и GET /api/hello.
// Публичные endpoints для мониторинга и проверки связи из UI.
package handlers

import (
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/wavpipe/internal/config"
	"github.com/bigkaa/wavpipe/internal/domain/model"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// DiskUsage — ёмкость файловой системы, на которой лежит директория.
type DiskUsage struct {
	Path           string  `json:"path"`
	TotalBytes     uint64  `json:"totalBytes"`
	UsedBytes      uint64  `json:"usedBytes"`
	AvailableBytes uint64  `json:"availableBytes"`
	UsedPercent    float64 `json:"usedPercent"`
}

// DiskUsageFunc возвращает ёмкость для директории.
type DiskUsageFunc func(path string) (*DiskUsage, error)

// TranscoderInfo — сведения о конвертере для /api/info.
type TranscoderInfo interface {
	BinaryResolver
	BundledAvailable() bool
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg        *config.Config
	reg        *registry.Registry
	transcoder TranscoderInfo
	diskUsage  DiskUsageFunc
}

// NewSystemHandler создаёт обработчик системных endpoints.
// diskUsage может быть nil — тогда ёмкость не отдаётся.
func NewSystemHandler(
	cfg *config.Config,
	reg *registry.Registry,
	transcoder TranscoderInfo,
	diskUsage DiskUsageFunc,
) *SystemHandler {
	return &SystemHandler{
		cfg:        cfg,
		reg:        reg,
		transcoder: transcoder,
		diskUsage:  diskUsage,
	}
}

// Hello обрабатывает GET /api/hello.
func (h *SystemHandler) Hello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Привет от wavpipe!",
	})
}

// GetInfo обрабатывает GET /api/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	byStatus := make(map[string]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		byStatus[string(st)] = h.reg.CountByStatus(st)
	}

	transcoder := map[string]any{
		"bundled": h.transcoder.BundledAvailable(),
	}
	if path, err := h.transcoder.Resolve(); err != nil {
		transcoder["error"] = err.Error()
	} else {
		transcoder["binary"] = path
	}

	resp := map[string]any{
		"service":    serviceName,
		"version":    config.Version,
		"transcoder": transcoder,
		"records": map[string]any{
			"total":    h.reg.Count(),
			"byStatus": byStatus,
		},
		"limits": map[string]any{
			"maxFileSize":       int64(h.cfg.MaxFileSize),
			"maxFileSizeHuman":  humanize.IBytes(uint64(h.cfg.MaxFileSize)),
			"maxFilesPerUpload": h.cfg.MaxFilesPerUpload,
		},
	}

	if h.diskUsage != nil {
		disks := make(map[string]any, 2)
		for name, dir := range map[string]string{"uploads": h.cfg.UploadDir, "converted": h.cfg.ConvertedDir} {
			usage, err := h.diskUsage(dir)
			if err != nil {
				disks[name] = map[string]string{"path": dir, "error": err.Error()}
				continue
			}
			disks[name] = usage
		}
		resp["disk"] = disks
	}

	writeJSON(w, http.StatusOK, resp)
}
