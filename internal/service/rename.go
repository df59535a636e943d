// rename.go — сервис переименования WAV по правилу усечения имени.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/wavpipe/internal/api/errors"
	"github.com/bigkaa/wavpipe/internal/domain/lifecycle"
	"github.com/bigkaa/wavpipe/internal/domain/model"
	"github.com/bigkaa/wavpipe/internal/domain/naming"
	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// RenameResult — итог переименования.
type RenameResult struct {
	// Changed — false, если правило не изменило имя (нет дефиса)
	Changed bool
	Record  *model.FileRecord
}

// RenameService — сервис переименования.
type RenameService struct {
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

// NewRenameService создаёт сервис переименования.
func NewRenameService(store *filestore.FileStore, reg *registry.Registry, logger *slog.Logger) *RenameService {
	return &RenameService{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "rename_service")),
	}
}

// Rename применяет правило усечения к оригинальному имени файла.
//
// Поток:
//  1. Claim(rename): запись существует, статус uploaded, не занята
//  2. Целевое имя: часть до первого дефиса, санитизация, расширение .wav
//  3. Без дефиса — ничего не делаем, статус не меняется
//  4. Переименование на диске без перезаписи; при коллизии — один
//     повтор с суффиксом _xxxxxx, затем NAME_COLLISION
//  5. TransitionToRenamed; при неудаче — откат переименования на диске
func (s *RenameService) Rename(id string) (*RenameResult, *Error) {
	rec, err := s.reg.Claim(id, lifecycle.OpRename)
	if err != nil {
		countOperation("rename", "error")
		return nil, fromRegistry(id, err)
	}
	defer s.reg.Release(id)

	base, _ := naming.SplitExt(rec.OriginalName)
	target := naming.DeriveTargetBaseName(base)
	if target == base {
		s.logger.Debug("Имя без дефиса, переименование не требуется",
			slog.String("file_id", id),
			slog.String("original_name", rec.OriginalName),
		)
		countOperation("rename", "noop")
		return &RenameResult{Changed: false, Record: rec}, nil
	}

	stem := naming.Sanitize(target)
	newName, newPath, err := s.renameOnDisk(rec, stem)
	if err != nil {
		countOperation("rename", "error")
		if errors.Is(err, filestore.ErrExists) {
			return nil, newError(http.StatusConflict, apierrors.CodeNameCollision,
				"Не удалось подобрать свободное имя для %s: %s.wav занято", rec.OriginalName, stem)
		}
		s.logger.Error("Ошибка переименования файла на диске",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return nil, newError(http.StatusInternalServerError, apierrors.CodeFilesystemError,
			"Ошибка переименования файла: %s", err.Error())
	}

	updated, err := s.reg.TransitionToRenamed(id, newName, newPath)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// Запись удалена во время операции: файл под новым именем никому не принадлежит
			_ = s.store.Remove(newPath)
		} else if mbErr := s.store.MoveBack(newPath, rec.ServerPath); mbErr != nil {
			s.logger.Error("Ошибка отката переименования",
				slog.String("file_id", id),
				slog.String("error", mbErr.Error()),
			)
		}
		countOperation("rename", "error")
		return nil, fromRegistry(id, err)
	}

	countOperation("rename", "success")
	refreshFileGauges(s.reg)

	s.logger.Info("Файл переименован",
		slog.String("file_id", id),
		slog.String("from", rec.ServerFileName),
		slog.String("to", newName),
	)

	return &RenameResult{Changed: true, Record: updated}, nil
}

// renameOnDisk переименовывает файл в stem.wav, при коллизии — в
// stem_xxxxxx.wav. Имя считается занятым, если файл существует на диске
// или путь принадлежит другой записи.
func (s *RenameService) renameOnDisk(rec *model.FileRecord, stem string) (string, string, error) {
	candidates := []string{
		stem + ".wav",
		disambiguate(stem) + ".wav",
	}

	var lastErr error
	for _, name := range candidates {
		path := s.store.UploadPath(name)
		if path == rec.ServerPath {
			return name, path, nil
		}
		if s.reg.PathClaimed(path) {
			lastErr = fmt.Errorf("%s: %w", name, filestore.ErrExists)
			continue
		}
		newPath, err := s.store.RenameUpload(rec.ServerPath, name)
		if err == nil {
			return name, newPath, nil
		}
		if !errors.Is(err, filestore.ErrExists) {
			return "", "", err
		}
		lastErr = err
	}
	return "", "", lastErr
}

// disambiguate добавляет к имени суффикс из 6 шестнадцатеричных символов.
// Длина результата не превышает naming.MaxNameLength.
func disambiguate(stem string) string {
	suffix := "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	runes := []rune(stem)
	if limit := naming.MaxNameLength - len(suffix); len(runes) > limit {
		stem = naming.Sanitize(string(runes[:limit]))
	}
	return stem + suffix
}
