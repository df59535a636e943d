// upload.go — сервис загрузки WAV-файлов.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	apierrors "github.com/bigkaa/wavpipe/internal/api/errors"
	"github.com/bigkaa/wavpipe/internal/domain/model"
	"github.com/bigkaa/wavpipe/internal/domain/naming"
	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// sniffLimit — сколько байт читать для определения типа по содержимому.
const sniffLimit = 3072

// wavMimeTypes — заявленные MIME-типы, принимаемые как WAV.
var wavMimeTypes = map[string]bool{
	"audio/wav":      true,
	"audio/x-wav":    true,
	"audio/wave":     true,
	"audio/vnd.wave": true,
}

// UploadParams — один файл из multipart-запроса.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalName — имя файла от клиента (как пришло в заголовке)
	OriginalName string
	// ContentType — заявленный MIME-тип
	ContentType string
	// Size — заявленный размер (0 — неизвестен)
	Size int64
}

// UploadedFile — принятый файл.
type UploadedFile struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
}

// RejectedFile — отклонённый файл с причиной.
type RejectedFile struct {
	OriginalName string `json:"originalName"`
	Code         string `json:"code"`
	Reason       string `json:"reason"`
}

// UploadResult — итог загрузки пакета файлов.
type UploadResult struct {
	Files    []UploadedFile
	Rejected []RejectedFile
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	store       *filestore.FileStore
	reg         *registry.Registry
	maxFileSize int64
	logger      *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	store *filestore.FileStore,
	reg *registry.Registry,
	maxFileSize int64,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		store:       store,
		reg:         reg,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "upload_service")),
	}
}

// MaxFileSize возвращает лимит размера одного файла.
func (s *UploadService) MaxFileSize() int64 {
	return s.maxFileSize
}

// Upload принимает пакет файлов. Каждый файл обрабатывается независимо:
// неподходящие попадают в Rejected, остальные регистрируются в статусе
// uploaded. Если не принят ни один файл, возвращается 400.
func (s *UploadService) Upload(files []UploadParams) (*UploadResult, *Error) {
	if len(files) == 0 {
		return nil, newError(http.StatusBadRequest, apierrors.CodeValidationError,
			"Файлы не переданы: ожидается поле wavFiles с WAV-файлами")
	}

	result := &UploadResult{
		Files:    make([]UploadedFile, 0, len(files)),
		Rejected: []RejectedFile{},
	}

	for _, params := range files {
		name := naming.DecodeOriginalName(params.OriginalName)
		rec, rejected := s.uploadOne(params, name)
		if rejected != nil {
			result.Rejected = append(result.Rejected, *rejected)
			countOperation("upload", "rejected")
			continue
		}
		result.Files = append(result.Files, UploadedFile{ID: rec.ID, OriginalName: rec.OriginalName})
		countOperation("upload", "success")
	}

	refreshFileGauges(s.reg)

	if len(result.Files) == 0 {
		reasons := make([]string, 0, len(result.Rejected))
		for _, r := range result.Rejected {
			reasons = append(reasons, fmt.Sprintf("%s: %s", r.OriginalName, r.Reason))
		}
		return result, newError(http.StatusBadRequest, apierrors.CodeValidationError,
			"Ни один файл не принят. %s", strings.Join(reasons, "; "))
	}

	return result, nil
}

// uploadOne сохраняет один файл на диск и регистрирует запись.
//
// Поток:
//  1. Проверка заявленного типа или расширения .wav
//  2. Проверка заявленного размера
//  3. Определение типа по первым байтам (mimetype)
//  4. SaveUpload (temp → fsync → rename, с лимитом размера)
//  5. registry.Register
//
// При ошибке регистрации файл удаляется с диска.
func (s *UploadService) uploadOne(params UploadParams, name string) (*model.FileRecord, *RejectedFile) {
	reject := func(code, format string, args ...any) *RejectedFile {
		return &RejectedFile{OriginalName: name, Code: code, Reason: fmt.Sprintf(format, args...)}
	}

	declared := detectContentType(params.ContentType)
	if !isWAV(declared, name) {
		return nil, reject(apierrors.CodeValidationError,
			"Недопустимый тип файла %s: принимаются только WAV", declared)
	}

	if s.maxFileSize > 0 && params.Size > s.maxFileSize {
		return nil, reject(apierrors.CodeFileTooLarge,
			"Размер файла %s превышает максимум %s",
			humanize.IBytes(uint64(params.Size)), humanize.IBytes(uint64(s.maxFileSize)))
	}

	// Читаем заголовок для определения типа и возвращаем его в поток
	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(params.Reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		s.logger.Error("Ошибка чтения загружаемого файла",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		return nil, reject(apierrors.CodeFilesystemError, "Ошибка чтения данных: %s", err.Error())
	}
	head = head[:n]
	if n == 0 {
		return nil, reject(apierrors.CodeValidationError, "Пустой файл")
	}

	mimeType := declared
	detected := mimetype.Detect(head)
	if detected.Is("audio/wav") {
		mimeType = detected.String()
	} else {
		s.logger.Warn("Содержимое файла не похоже на WAV",
			slog.String("filename", name),
			slog.String("declared", declared),
			slog.String("detected", detected.String()),
		)
	}

	saved, err := s.store.SaveUpload(io.MultiReader(bytes.NewReader(head), params.Reader), name, s.maxFileSize)
	if err != nil {
		var tooLarge *filestore.TooLargeError
		if errors.As(err, &tooLarge) {
			return nil, reject(apierrors.CodeFileTooLarge,
				"Размер файла превышает максимум %s", humanize.IBytes(uint64(tooLarge.Limit)))
		}
		s.logger.Error("Ошибка сохранения файла",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		return nil, reject(apierrors.CodeFilesystemError, "Ошибка сохранения файла на диск")
	}

	rec, err := s.reg.Register(model.NewRecord{
		OriginalName:   name,
		ServerFileName: saved.Name,
		ServerPath:     saved.Path,
		Size:           saved.Size,
		Mimetype:       mimeType,
	})
	if err != nil {
		_ = s.store.Remove(saved.Path)
		s.logger.Error("Ошибка регистрации файла",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		return nil, reject(apierrors.CodeInternalError, "Ошибка регистрации файла")
	}

	s.logger.Info("Файл загружен",
		slog.String("file_id", rec.ID),
		slog.String("filename", name),
		slog.String("server_name", saved.Name),
		slog.String("size", humanize.IBytes(uint64(saved.Size))),
		slog.String("mimetype", mimeType),
	)

	return rec, nil
}

// isWAV проверяет заявленный MIME-тип или расширение .wav.
func isWAV(contentType, name string) bool {
	return wavMimeTypes[strings.ToLower(contentType)] ||
		strings.EqualFold(filepath.Ext(name), ".wav")
}

// detectContentType определяет Content-Type из заголовка multipart part.
// Если не указан — используется application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	// Убираем параметры (charset и т.д.)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}
