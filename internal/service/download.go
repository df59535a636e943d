// download.go — сервис скачивания сконвертированных M4A.
package service

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"

	apierrors "github.com/bigkaa/wavpipe/internal/api/errors"
	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// M4AContentType — Content-Type отдаваемых файлов.
const M4AContentType = "audio/mp4"

// DownloadService — сервис скачивания файлов.
type DownloadService struct {
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания файлов.
func NewDownloadService(store *filestore.FileStore, reg *registry.Registry, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт M4A клиенту через http.ServeContent (Range, If-Modified-Since).
// Отдаются только файлы, принадлежащие записи в статусе converted:
// произвольные файлы из директории результатов недоступны.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, filename string) *Error {
	rec, err := s.reg.FindByConvertedName(filename)
	if err != nil {
		countOperation("download", "not_found")
		return newError(http.StatusNotFound, apierrors.CodeNotFound, "Файл %s не найден", filename)
	}

	file, info, err := s.store.OpenConverted(filename)
	if err != nil {
		countOperation("download", "not_found")
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, filestore.ErrInvalidName) {
			s.logger.Warn("Файл записи отсутствует на диске",
				slog.String("file_id", rec.ID),
				slog.String("filename", filename),
			)
			return newError(http.StatusNotFound, apierrors.CodeNotFound, "Файл %s не найден на диске", filename)
		}
		s.logger.Error("Ошибка открытия файла",
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return newError(http.StatusInternalServerError, apierrors.CodeFilesystemError, "Ошибка чтения файла")
	}
	defer file.Close()

	w.Header().Set("Content-Type", M4AContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filename, info.ModTime(), file)

	countOperation("download", "success")
	s.logger.Debug("Файл скачан",
		slog.String("file_id", rec.ID),
		slog.String("filename", filename),
		slog.Int64("size", info.Size()),
	)

	return nil
}
