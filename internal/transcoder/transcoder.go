// Пакет transcoder — вызов внешнего ffmpeg для конвертации WAV → M4A (AAC).
//
// Бинарник ищется перед каждым вызовом: сначала путь из конфигурации
// (поставляемая копия), затем ffmpeg из $PATH. Результат пишется во
// временный файл рядом с целевым и переименовывается только после
// проверки, что он существует и не пуст. Transcoder не хранит состояния
// между вызовами и безопасен для конкурентного использования.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
)

// DefaultBinary — имя ffmpeg для поиска в $PATH.
const DefaultBinary = "ffmpeg"

// stderrTailLimit — сколько последних байт stderr сохранять в ошибке.
const stderrTailLimit = 2048

// Reason — машиночитаемая причина неудачи конвертации.
type Reason string

const (
	ReasonBinaryNotFound Reason = "binary_not_found"
	ReasonInputMissing   Reason = "input_missing"
	ReasonProcessFailed  Reason = "process_failed"
	ReasonOutputMissing  Reason = "output_missing"
	ReasonTimeout        Reason = "timeout"
	ReasonCancelled      Reason = "cancelled"
)

// Error — ошибка конвертации с причиной и диагностикой.
type Error struct {
	Reason Reason
	// Detail — диагностика (хвост stderr, код выхода, путь)
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsReason проверяет, что err — *Error с указанной причиной.
func IsReason(err error, reason Reason) bool {
	var te *Error
	return errors.As(err, &te) && te.Reason == reason
}

// Options — параметры кодирования.
type Options struct {
	// Bitrate — битрейт AAC, например "128k"
	Bitrate string
	// Channels — количество каналов
	Channels int
	// SampleRate — частота дискретизации, Гц
	SampleRate int
	// Timeout — ограничение времени одного вызова (0 — без ограничения)
	Timeout time.Duration
}

// DefaultOptions возвращает параметры по умолчанию: AAC 128k, стерео, 44.1 кГц.
func DefaultOptions() Options {
	return Options{
		Bitrate:    "128k",
		Channels:   2,
		SampleRate: 44100,
		Timeout:    10 * time.Minute,
	}
}

// Transcoder — адаптер ffmpeg.
type Transcoder struct {
	bundledPath string
	opts        Options
	logger      *slog.Logger
}

// New создаёт Transcoder. bundledPath — путь к поставляемому ffmpeg
// (пустая строка — только $PATH).
func New(bundledPath string, opts Options, logger *slog.Logger) *Transcoder {
	return &Transcoder{
		bundledPath: bundledPath,
		opts:        opts,
		logger:      logger.With(slog.String("component", "transcoder")),
	}
}

// Resolve возвращает путь к ffmpeg, который будет использован.
func (t *Transcoder) Resolve() (string, error) {
	if t.bundledPath != "" {
		if info, err := os.Stat(t.bundledPath); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return t.bundledPath, nil
		}
	}

	path, err := exec.LookPath(DefaultBinary)
	if err != nil {
		return "", &Error{
			Reason: ReasonBinaryNotFound,
			Detail: fmt.Sprintf("ffmpeg не найден ни по пути %q, ни в $PATH", t.bundledPath),
			Err:    err,
		}
	}
	return path, nil
}

// BundledAvailable проверяет наличие поставляемой копии ffmpeg.
func (t *Transcoder) BundledAvailable() bool {
	if t.bundledPath == "" {
		return false
	}
	info, err := os.Stat(t.bundledPath)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

// Convert конвертирует inputPath в M4A по пути outputPath.
// Существующий outputPath перезаписывается только при успехе.
// Все ошибки — *Error.
func (t *Transcoder) Convert(ctx context.Context, inputPath, outputPath string) error {
	binary, err := t.Resolve()
	if err != nil {
		return err
	}

	if info, err := os.Stat(inputPath); err != nil || info.IsDir() {
		return &Error{
			Reason: ReasonInputMissing,
			Detail: filepath.Base(inputPath),
			Err:    err,
		}
	}

	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	partPath := filepath.Join(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".part")
	defer os.Remove(partPath)

	task := execute.ExecTask{
		Command: binary,
		Args:    t.buildArgs(inputPath, partPath),
	}

	start := time.Now()
	t.logger.Debug("Запуск ffmpeg",
		slog.String("binary", binary),
		slog.String("input", filepath.Base(inputPath)),
		slog.String("output", filepath.Base(outputPath)),
	)

	result, execErr := task.Execute(ctx)

	// Контекст проверяется первым: убитый по таймауту процесс
	// завершается с ненулевым кодом, но причина — таймаут.
	if ctxErr := ctx.Err(); ctxErr != nil {
		reason := ReasonCancelled
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		return &Error{
			Reason: reason,
			Detail: fmt.Sprintf("прервано через %s", time.Since(start).Round(time.Millisecond)),
			Err:    ctxErr,
		}
	}

	if execErr != nil {
		return &Error{
			Reason: ReasonProcessFailed,
			Detail: execErr.Error(),
			Err:    execErr,
		}
	}

	if result.ExitCode != 0 {
		return &Error{
			Reason: ReasonProcessFailed,
			Detail: fmt.Sprintf("код выхода %d: %s", result.ExitCode, stderrTail(result.Stderr)),
		}
	}

	info, err := os.Stat(partPath)
	if err != nil || info.Size() == 0 {
		return &Error{
			Reason: ReasonOutputMissing,
			Detail: "ffmpeg завершился успешно, но не создал выходной файл",
			Err:    err,
		}
	}

	if err := os.Rename(partPath, outputPath); err != nil {
		return &Error{
			Reason: ReasonOutputMissing,
			Detail: "не удалось переместить результат",
			Err:    err,
		}
	}

	t.logger.Debug("ffmpeg завершён",
		slog.String("output", filepath.Base(outputPath)),
		slog.Int64("size", info.Size()),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// buildArgs формирует аргументы ffmpeg.
func (t *Transcoder) buildArgs(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-vn",
		"-c:a", "aac",
		"-b:a", t.opts.Bitrate,
		"-ac", strconv.Itoa(t.opts.Channels),
		"-ar", strconv.Itoa(t.opts.SampleRate),
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	}
}

// stderrTail возвращает последние stderrTailLimit байт stderr.
func stderrTail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) <= stderrTailLimit {
		return stderr
	}
	return "…" + stderr[len(stderr)-stderrTailLimit:]
}
