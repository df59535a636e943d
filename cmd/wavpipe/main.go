// Точка входа wavpipe — сервиса загрузки WAV, переименования и
// конвертации в M4A.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/bigkaa/wavpipe/internal/api/handlers"
	"github.com/bigkaa/wavpipe/internal/api/openapi"
	"github.com/bigkaa/wavpipe/internal/config"
	"github.com/bigkaa/wavpipe/internal/server"
	"github.com/bigkaa/wavpipe/internal/service"
	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
	"github.com/bigkaa/wavpipe/internal/transcoder"
)

func main() {
	// .env необязателен: переменные окружения имеют приоритет
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("wavpipe запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
		slog.String("converted_dir", cfg.ConvertedDir),
		slog.String("max_file_size", cfg.MaxFileSize.String()),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. OpenAPI контракт
	if _, err := openapi.Load(ctx); err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Файловое хранилище
	store, err := filestore.New(afero.NewOsFs(), cfg.UploadDir, cfg.ConvertedDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Реестр записей (только в памяти, один на процесс)
	reg := registry.New(logger)

	// 4. Конвертер
	tc := transcoder.New(cfg.FFmpegPath, transcoder.Options{
		Bitrate:    cfg.AudioBitrate,
		Channels:   cfg.AudioChannels,
		SampleRate: cfg.AudioSampleRate,
		Timeout:    cfg.ConvertTimeout,
	}, logger)

	if !tc.BundledAvailable() {
		logger.Warn("Поставляемый ffmpeg не найден, используется ffmpeg из $PATH",
			slog.String("ffmpeg_path", cfg.FFmpegPath),
		)
	}
	if binary, err := tc.Resolve(); err != nil {
		// Сервис стартует: загрузка и переименование работают без ffmpeg
		logger.Error("ffmpeg недоступен, конвертация будет завершаться ошибкой",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("Конвертер найден", slog.String("binary", binary))
	}

	// 5. Сервисы
	uploadSvc := service.NewUploadService(store, reg, int64(cfg.MaxFileSize), logger)
	renameSvc := service.NewRenameService(store, reg, logger)
	convertSvc := service.NewConvertService(store, reg, tc, service.ConvertOptions{
		MaxParallel:  cfg.MaxParallelConversions,
		DeleteSource: cfg.DeleteSourceAfterConvert,
	}, logger)
	deleteSvc := service.NewDeleteService(store, reg, logger)
	downloadSvc := service.NewDownloadService(store, reg, logger)

	// 6. Фоновые процессы
	sweeper := service.NewSweeper(store, reg, cfg.SweepInterval, cfg.OrphanTTL, logger)
	sweeper.Start(ctx)

	// 7. Handlers
	filesHandler := handlers.NewFilesHandler(
		uploadSvc, renameSvc, convertSvc, deleteSvc, downloadSvc,
		reg, cfg.MaxFilesPerUpload, logger,
	)
	systemHandler := handlers.NewSystemHandler(cfg, reg, tc, getDiskUsage)
	healthHandler := handlers.NewHealthHandler(store, tc)

	apiHandler := handlers.NewAPIHandler(
		filesHandler,
		systemHandler,
		healthHandler,
		openapi.Contract(),
		promhttp.Handler(),
	)

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		sweeper.Stop()
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	sweeper.Stop()

	logger.Info("wavpipe остановлен")
}
