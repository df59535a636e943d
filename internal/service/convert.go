// convert.go — сервис пакетной конвертации WAV → M4A.
//
// Каждый id пакета обрабатывается независимо, результаты возвращаются
// в порядке запроса, по одному на id. Конвертации пакета выполняются
// параллельно (errgroup), ответ формируется после завершения всех.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	apierrors "github.com/bigkaa/wavpipe/internal/api/errors"
	"github.com/bigkaa/wavpipe/internal/api/middleware"
	"github.com/bigkaa/wavpipe/internal/domain/lifecycle"
	"github.com/bigkaa/wavpipe/internal/domain/model"
	"github.com/bigkaa/wavpipe/internal/domain/naming"
	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// DownloadPrefix — префикс URL скачивания M4A.
const DownloadPrefix = "/api/download/"

// Результат конвертации одного файла.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Converter — внешний конвертер WAV → M4A.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// ConvertResult — итог конвертации одного id.
type ConvertResult struct {
	ID                string `json:"id"`
	OriginalName      string `json:"originalName"`
	Status            string `json:"status"`
	Message           string `json:"message,omitempty"`
	DownloadURL       string `json:"downloadUrl,omitempty"`
	ConvertedFileName string `json:"convertedFileName,omitempty"`
	Error             string `json:"error,omitempty"`
	Code              string `json:"code,omitempty"`
	Details           string `json:"details,omitempty"`
}

// ConvertOptions — параметры сервиса конвертации.
type ConvertOptions struct {
	// MaxParallel — ограничение параллельных конвертаций в пакете (0 — без ограничения)
	MaxParallel int
	// DeleteSource — удалять исходный WAV после успешной конвертации
	DeleteSource bool
}

// ConvertService — сервис конвертации.
type ConvertService struct {
	store     *filestore.FileStore
	reg       *registry.Registry
	converter Converter
	opts      ConvertOptions
	logger    *slog.Logger
}

// NewConvertService создаёт сервис конвертации.
func NewConvertService(
	store *filestore.FileStore,
	reg *registry.Registry,
	converter Converter,
	opts ConvertOptions,
	logger *slog.Logger,
) *ConvertService {
	return &ConvertService{
		store:     store,
		reg:       reg,
		converter: converter,
		opts:      opts,
		logger:    logger.With(slog.String("component", "convert_service")),
	}
}

// ConvertBatch конвертирует все ids и возвращает результаты в порядке
// запроса. Ошибка одного файла не влияет на остальные.
func (s *ConvertService) ConvertBatch(ctx context.Context, ids []string) []ConvertResult {
	results := make([]ConvertResult, len(ids))

	g := new(errgroup.Group)
	if s.opts.MaxParallel > 0 {
		g.SetLimit(s.opts.MaxParallel)
	}

	for i, id := range ids {
		g.Go(func() error {
			results[i] = s.convertOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	refreshFileGauges(s.reg)

	succeeded := 0
	for _, r := range results {
		if r.Status == ResultSuccess {
			succeeded++
		}
	}
	s.logger.Info("Пакетная конвертация завершена",
		slog.Int("requested", len(ids)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(ids)-succeeded),
	)

	return results
}

// convertOne конвертирует один файл.
//
// Поток:
//  1. Claim(convert): запись существует, статус uploaded/renamed/conversion_failed
//  2. Резервация имени M4A (при коллизии — один повтор с суффиксом)
//  3. Вызов конвертера
//  4. Переход в converted или conversion_failed
//
// Если запись удалена во время конвертации, созданный M4A удаляется.
func (s *ConvertService) convertOne(ctx context.Context, id string) ConvertResult {
	rec, err := s.reg.Claim(id, lifecycle.OpConvert)
	if err != nil {
		countOperation("convert", "rejected")
		return s.claimFailure(id, err)
	}
	defer s.reg.Release(id)

	result := ConvertResult{ID: id, OriginalName: rec.OriginalName}
	fail := func(code, message, details string) ConvertResult {
		result.Status = ResultError
		result.Code = code
		result.Error = message
		result.Details = details
		return result
	}

	name, err := s.reserveOutputName(rec)
	if err != nil {
		countOperation("convert", "error")
		if errors.Is(err, registry.ErrNotFound) {
			return fail(apierrors.CodeNotFound, "Файл удалён во время конвертации", "")
		}
		return fail(apierrors.CodeNameCollision, "Не удалось подобрать имя для M4A", err.Error())
	}
	outPath := s.store.ConvertedPath(name)

	middleware.ConversionsInFlight.Inc()
	start := time.Now()
	convErr := s.converter.Convert(ctx, rec.ServerPath, outPath)
	middleware.ConversionDuration.Observe(time.Since(start).Seconds())
	middleware.ConversionsInFlight.Dec()

	if convErr != nil {
		countOperation("convert", "error")
		s.logger.Warn("Ошибка конвертации",
			slog.String("file_id", id),
			slog.String("input", rec.ServerFileName),
			slog.String("error", convErr.Error()),
		)

		if _, trErr := s.reg.TransitionToConversionFailed(id, convErr.Error()); trErr != nil {
			if errors.Is(trErr, registry.ErrNotFound) {
				return fail(apierrors.CodeNotFound, "Файл удалён во время конвертации", convErr.Error())
			}
			s.reg.ReleaseConvertedName(id, name)
		}
		return fail(apierrors.CodeTranscoderError, "Ошибка конвертации", convErr.Error())
	}

	downloadURL := DownloadPrefix + url.PathEscape(name)
	updated, err := s.reg.TransitionToConverted(id, name, outPath, downloadURL)
	if err != nil {
		// Результат никому не принадлежит
		_ = s.store.Remove(outPath)
		s.reg.ReleaseConvertedName(id, name)
		countOperation("convert", "error")
		if errors.Is(err, registry.ErrNotFound) {
			s.logger.Info("Запись удалена во время конвертации, результат удалён",
				slog.String("file_id", id),
			)
			return fail(apierrors.CodeNotFound, "Файл удалён во время конвертации", "")
		}
		return fail(apierrors.CodeInternalError, "Ошибка обновления записи", err.Error())
	}

	if s.opts.DeleteSource {
		if err := s.store.Remove(rec.ServerPath); err != nil {
			s.logger.Warn("Не удалось удалить исходный WAV",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	countOperation("convert", "success")
	s.logger.Info("Файл сконвертирован",
		slog.String("file_id", id),
		slog.String("output", name),
		slog.Duration("duration", time.Since(start)),
	)

	result.Status = ResultSuccess
	result.Message = fmt.Sprintf("Файл %s сконвертирован в %s", rec.OriginalName, name)
	result.DownloadURL = updated.DownloadURL
	result.ConvertedFileName = updated.ConvertedFileName
	return result
}

// claimFailure формирует результат для id, который нельзя конвертировать.
func (s *ConvertService) claimFailure(id string, err error) ConvertResult {
	svcErr := fromRegistry(id, err)
	result := ConvertResult{
		ID:     id,
		Status: ResultError,
		Code:   svcErr.Code,
		Error:  svcErr.Message,
	}
	if rec, findErr := s.reg.FindByID(id); findErr == nil {
		result.OriginalName = rec.OriginalName
	} else {
		result.OriginalName = fmt.Sprintf("Unknown (ID: %s)", id)
	}
	return result
}

// reserveOutputName резервирует имя M4A: базовое имя текущего WAV с
// расширением .m4a, при коллизии (в реестре или на диске) — с суффиксом.
func (s *ConvertService) reserveOutputName(rec *model.FileRecord) (string, error) {
	base, _ := naming.SplitExt(rec.ServerFileName)
	stem := naming.Sanitize(base)

	var lastErr error
	for _, name := range []string{stem + ".m4a", disambiguate(stem) + ".m4a"} {
		if s.store.Exists(s.store.ConvertedPath(name)) {
			lastErr = fmt.Errorf("%s: %w", name, registry.ErrNameCollision)
			continue
		}
		err := s.reg.ReserveConvertedName(rec.ID, name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, registry.ErrNameCollision) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
