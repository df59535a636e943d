// files.go — HTTP handlers файловых операций wavpipe.
// Upload, List, Get, Rename, Convert, Download, Delete.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/samber/lo"

	apierrors "github.com/bigkaa/wavpipe/internal/api/errors"
	"github.com/bigkaa/wavpipe/internal/domain/model"
	"github.com/bigkaa/wavpipe/internal/service"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// UploadField — имя поля multipart с файлами.
const UploadField = "wavFiles"

// multipartMemory — сколько данных multipart держать в памяти, остальное
// уходит во временные файлы.
const multipartMemory = 32 << 20

// convertRequest — тело POST /api/convert-selected-to-m4a.
type convertRequest struct {
	FileIDs []string `json:"fileIds" validate:"required,min=1,dive,required"`
}

// uploadResponse — ответ на загрузку.
type uploadResponse struct {
	Message  string                 `json:"message"`
	Files    []service.UploadedFile `json:"files"`
	Rejected []service.RejectedFile `json:"rejected"`
}

// renameResponse — ответ на переименование.
type renameResponse struct {
	Message string            `json:"message"`
	Changed bool              `json:"changed"`
	File    model.FileSummary `json:"file"`
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	renameSvc   *service.RenameService
	convertSvc  *service.ConvertService
	deleteSvc   *service.DeleteService
	downloadSvc *service.DownloadService
	reg         *registry.Registry
	maxFiles    int
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	renameSvc *service.RenameService,
	convertSvc *service.ConvertService,
	deleteSvc *service.DeleteService,
	downloadSvc *service.DownloadService,
	reg *registry.Registry,
	maxFiles int,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		renameSvc:   renameSvc,
		convertSvc:  convertSvc,
		deleteSvc:   deleteSvc,
		downloadSvc: downloadSvc,
		reg:         reg,
		maxFiles:    maxFiles,
		validate:    validator.New(),
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// UploadWavs обрабатывает POST /api/upload-wavs.
// Multipart form: wavFiles (1..maxFiles файлов).
func (h *FilesHandler) UploadWavs(w http.ResponseWriter, r *http.Request) {
	// Ограничение тела: все файлы плюс запас на заголовки частей
	limit := h.uploadSvc.MaxFileSize()*int64(h.maxFiles) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает %d байт", maxErr.Limit))
			return
		}
		h.logger.Warn("Некорректный multipart-запрос",
			slog.String("content_type", r.Header.Get("Content-Type")),
			slog.String("error", err.Error()),
		)
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[UploadField]
	if len(headers) == 0 {
		apierrors.ValidationError(w, fmt.Sprintf("Поле '%s' обязательно", UploadField))
		return
	}
	if len(headers) > h.maxFiles {
		apierrors.ValidationError(w, fmt.Sprintf("Слишком много файлов: %d, максимум %d", len(headers), h.maxFiles))
		return
	}

	params := make([]service.UploadParams, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Ошибка чтения файла %s: %s", fh.Filename, err.Error()))
			return
		}
		defer f.Close()

		params = append(params, service.UploadParams{
			Reader:       f,
			OriginalName: fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			Size:         fh.Size,
		})
	}

	result, uploadErr := h.uploadSvc.Upload(params)
	if uploadErr != nil {
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Message:  fmt.Sprintf("Загружено файлов: %d, отклонено: %d", len(result.Files), len(result.Rejected)),
		Files:    result.Files,
		Rejected: result.Rejected,
	})
}

// ListOriginal обрабатывает GET /api/list-original-wavs: файлы в статусе uploaded.
func (h *FilesHandler) ListOriginal(w http.ResponseWriter, _ *http.Request) {
	h.writeList(w, model.StatusUploaded)
}

// ListRenamed обрабатывает GET /api/list-renamed-wavs: файлы, доступные
// для конвертации после переименования, и уже обработанные.
func (h *FilesHandler) ListRenamed(w http.ResponseWriter, _ *http.Request) {
	h.writeList(w, model.StatusRenamed, model.StatusConversionFailed, model.StatusConverted)
}

// ListConverted обрабатывает GET /api/list-converted-wavs.
func (h *FilesHandler) ListConverted(w http.ResponseWriter, _ *http.Request) {
	h.writeList(w, model.StatusConverted)
}

func (h *FilesHandler) writeList(w http.ResponseWriter, statuses ...model.Status) {
	records := h.reg.ListByStatus(statuses...)
	summaries := lo.Map(records, func(rec *model.FileRecord, _ int) model.FileSummary {
		return rec.Summary()
	})
	writeJSON(w, http.StatusOK, summaries)
}

// GetFile обрабатывает GET /api/files/{id}.
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	rec, err := h.reg.FindByID(id)
	if err != nil {
		apierrors.NotFound(w, fmt.Sprintf("Файл с ID %s не найден", id))
		return
	}
	writeJSON(w, http.StatusOK, rec.Summary())
}

// RenameWav обрабатывает POST /api/rename-wav/{id}.
func (h *FilesHandler) RenameWav(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	result, svcErr := h.renameSvc.Rename(id)
	if svcErr != nil {
		apierrors.WriteError(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}

	message := fmt.Sprintf("Файл переименован в %s", result.Record.ServerFileName)
	if !result.Changed {
		message = "Имя не содержит дефиса, переименование не требуется"
	}
	writeJSON(w, http.StatusOK, renameResponse{
		Message: message,
		Changed: result.Changed,
		File:    result.Record.Summary(),
	})
}

// ConvertSelected обрабатывает POST /api/convert-selected-to-m4a.
// Ответ отдаётся после завершения всех конвертаций пакета.
func (h *FilesHandler) ConvertSelected(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apierrors.ValidationError(w, "Поле fileIds должно содержать хотя бы один непустой идентификатор")
		return
	}

	results := h.convertSvc.ConvertBatch(r.Context(), req.FileIDs)
	writeJSON(w, http.StatusOK, results)
}

// Download обрабатывает GET /api/download/{filename}.
// Поддерживает Range requests (206).
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		// chi берёт параметр из RawPath, если он задан
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		name = unescaped
	}

	if svcErr := h.downloadSvc.Serve(w, r, name); svcErr != nil {
		apierrors.WriteError(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
	}
}

// DeleteFile обрабатывает DELETE /api/delete-file/{id}.
// Удаляет запись в любом статусе вместе с файлами на диске.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}

	result, svcErr := h.deleteSvc.Delete(id)
	if svcErr != nil {
		apierrors.WriteError(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// fileID извлекает и проверяет path-параметр {id}. Идентификатор,
// не являющийся UUID, не может принадлежать ни одной записи: 404.
func fileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id openapi_types.UUID
	raw := chi.URLParam(r, "id")

	err := runtime.BindStyledParameterWithOptions("simple", "id", raw, &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		apierrors.NotFound(w, fmt.Sprintf("Файл с ID %s не найден", raw))
		return "", false
	}
	return id.String(), true
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
