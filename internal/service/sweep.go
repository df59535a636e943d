// sweep.go — фоновая очистка осиротевших файлов.
//
// Записи хранятся только в памяти, поэтому после перезапуска процесса
// файлы в директориях загрузок и результатов никому не принадлежат.
// Сборщик удаляет файлы, которые не принадлежат ни одной записи и
// не изменялись дольше orphanTTL.
//
// Запускается как горутина с периодическим тикером (WP_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/wavpipe/internal/api/middleware"
	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// SweepResult — результат одного запуска сборщика.
type SweepResult struct {
	// Scanned — количество просмотренных файлов
	Scanned int
	// DeletedCount — количество удалённых файлов
	DeletedCount int
	// Errors — количество ошибок удаления
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Sweeper — сборщик осиротевших файлов.
type Sweeper struct {
	store     *filestore.FileStore
	reg       *registry.Registry
	interval  time.Duration
	orphanTTL time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper создаёт сборщик осиротевших файлов.
func NewSweeper(
	store *filestore.FileStore,
	reg *registry.Registry,
	interval, orphanTTL time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		store:     store,
		reg:       reg,
		interval:  interval,
		orphanTTL: orphanTTL,
		logger:    logger.With(slog.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Start запускает фоновую горутину. При нулевом интервале сборщик не
// запускается.
func (sw *Sweeper) Start(ctx context.Context) {
	if sw.interval <= 0 {
		sw.logger.Info("Сборщик осиротевших файлов отключён")
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.done = make(chan struct{})

	go sw.run(sweepCtx)

	sw.logger.Info("Сборщик осиротевших файлов запущен",
		slog.String("interval", sw.interval.String()),
		slog.String("orphan_ttl", sw.orphanTTL.String()),
	)
}

// Stop останавливает фоновую горутину и дожидается её завершения.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
	sw.cancel = nil
	sw.logger.Info("Сборщик осиротевших файлов остановлен")
}

func (sw *Sweeper) run(ctx context.Context) {
	defer close(sw.done)

	// Первый запуск — сразу после старта
	sw.RunOnce()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.RunOnce()
		}
	}
}

// RunOnce выполняет один проход: удаляет файлы верхнего уровня обеих
// директорий, которые не принадлежат записям и старше orphanTTL.
// Свежие файлы не трогаются: это могут быть результаты загрузки или
// конвертации, ещё не зарегистрированные в реестре.
func (sw *Sweeper) RunOnce() *SweepResult {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	files, err := sw.store.ListFiles()
	if err != nil {
		sw.logger.Error("Ошибка чтения директорий",
			slog.String("error", err.Error()),
		)
		result.Errors++
		middleware.SweepRunsTotal.Inc()
		return result
	}

	claimed := sw.reg.ClaimedPaths()
	cutoff := sw.now().Add(-sw.orphanTTL)

	for _, f := range files {
		result.Scanned++
		if _, ok := claimed[f.Path]; ok {
			continue
		}
		if f.ModTime.After(cutoff) {
			continue
		}

		if err := sw.store.Remove(f.Path); err != nil {
			sw.logger.Error("Ошибка удаления осиротевшего файла",
				slog.String("path", f.Path),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		sw.logger.Debug("Осиротевший файл удалён",
			slog.String("path", f.Path),
			slog.Time("mod_time", f.ModTime),
		)
		result.DeletedCount++
	}

	result.Duration = time.Since(start)

	middleware.SweepRunsTotal.Inc()
	middleware.SweepFilesDeleted.Add(float64(result.DeletedCount))

	sw.logger.Info("Очистка осиротевших файлов завершена",
		slog.Int("scanned", result.Scanned),
		slog.Int("deleted", result.DeletedCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
