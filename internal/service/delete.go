// delete.go — сервис удаления записи и её файлов.
package service

import (
	"fmt"
	"log/slog"

	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// DeleteResult — итог удаления.
type DeleteResult struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// DeleteService — сервис удаления файлов.
type DeleteService struct {
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

// NewDeleteService создаёт сервис удаления.
func NewDeleteService(store *filestore.FileStore, reg *registry.Registry, logger *slog.Logger) *DeleteService {
	return &DeleteService{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "delete_service")),
	}
}

// Delete удаляет запись в любом статусе, затем WAV и M4A с диска.
// Удаление допускается и во время конвертации: операция, завершившись,
// обнаружит отсутствие записи и уберёт созданные файлы сама.
// Ошибки удаления файлов логируются и не возвращаются клиенту.
func (s *DeleteService) Delete(id string) (*DeleteResult, *Error) {
	rec, err := s.reg.Delete(id)
	if err != nil {
		countOperation("delete", "error")
		return nil, fromRegistry(id, err)
	}

	for _, path := range []string{rec.ServerPath, rec.ConvertedFilePath} {
		if err := s.store.Remove(path); err != nil {
			s.logger.Warn("Не удалось удалить файл с диска",
				slog.String("file_id", id),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	countOperation("delete", "success")
	refreshFileGauges(s.reg)

	s.logger.Info("Файл удалён",
		slog.String("file_id", id),
		slog.String("original_name", rec.OriginalName),
		slog.String("status", string(rec.Status)),
	)

	return &DeleteResult{
		ID:      id,
		Message: fmt.Sprintf("Файл %s удалён", rec.OriginalName),
	}, nil
}
