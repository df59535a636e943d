// Пакет config — загрузка и валидация конфигурации wavpipe
// из переменных окружения с префиксом WP_.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "WP"

// ByteSize — размер в байтах. Из окружения принимает как число байт,
// так и человекочитаемую запись: "100MiB", "1.5GB".
type ByteSize int64

// Decode реализует envconfig.Decoder.
func (b *ByteSize) Decode(value string) error {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("некорректный размер: %q (примеры: 104857600, 100MiB, 1GB)", value)
	}
	*b = ByteSize(n)
	return nil
}

// String возвращает размер в человекочитаемом виде.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config содержит все параметры конфигурации wavpipe.
type Config struct {
	// Порт HTTP-сервера
	Port int `envconfig:"PORT" default:"3001" validate:"min=1,max=65535"`
	// Директория загруженных WAV
	UploadDir string `envconfig:"UPLOAD_DIR" default:"./uploads" validate:"required"`
	// Директория результатов конвертации
	ConvertedDir string `envconfig:"CONVERTED_DIR" default:"./converted" validate:"required"`
	// Путь к поставляемому ffmpeg (при отсутствии используется ffmpeg из $PATH)
	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"./bin/ffmpeg"`

	// Максимальный размер одного загружаемого файла
	MaxFileSize ByteSize `envconfig:"MAX_FILE_SIZE" default:"100MiB" validate:"gt=0"`
	// Максимальное количество файлов в одном запросе загрузки
	MaxFilesPerUpload int `envconfig:"MAX_FILES_PER_UPLOAD" default:"10" validate:"min=1,max=1000"`

	// Таймаут одной конвертации
	ConvertTimeout time.Duration `envconfig:"CONVERT_TIMEOUT" default:"10m" validate:"gt=0"`
	// Битрейт AAC
	AudioBitrate string `envconfig:"AUDIO_BITRATE" default:"128k" validate:"required"`
	// Количество каналов
	AudioChannels int `envconfig:"AUDIO_CHANNELS" default:"2" validate:"min=1,max=8"`
	// Частота дискретизации, Гц
	AudioSampleRate int `envconfig:"AUDIO_SAMPLE_RATE" default:"44100" validate:"min=8000,max=192000"`
	// Ограничение параллельных конвертаций в одном пакете (0 — без ограничения)
	MaxParallelConversions int `envconfig:"MAX_PARALLEL_CONVERSIONS" default:"0" validate:"min=0"`
	// Удалять исходный WAV после успешной конвертации
	DeleteSourceAfterConvert bool `envconfig:"DELETE_SOURCE_AFTER_CONVERT" default:"false"`

	// Разрешённые CORS origins (через запятую)
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// Директория собранного фронтенда (пусто — статика не отдаётся)
	StaticDir string `envconfig:"STATIC_DIR"`

	// Интервал запуска сборщика осиротевших файлов (0 — отключён)
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h" validate:"min=0"`
	// Возраст, после которого файл без записи считается осиротевшим
	OrphanTTL time.Duration `envconfig:"ORPHAN_TTL" default:"24h" validate:"gt=0"`

	// Уровень логирования (debug, info, warn, error)
	LogLevelName string `envconfig:"LOG_LEVEL" default:"info"`
	// Формат логов (json, text)
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	// LogLevel — разобранный уровень логирования
	LogLevel slog.Level `ignored:"true"`

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
	// Таймауты HTTP-сервера. Запись большая, потому что ответ на пакетную
	// конвертацию отдаётся после завершения всех процессов ffmpeg.
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"5m" validate:"gt=0"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15m" validate:"gt=0"`
	IdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"2m" validate:"gt=0"`

	// Путь к TLS сертификату и ключу (опционально, задаются парой)
	TLSCert string `envconfig:"TLS_CERT" validate:"required_with=TLSKey"`
	TLSKey  string `envconfig:"TLS_KEY" validate:"required_with=TLSCert"`
}

// validate — валидатор структуры конфигурации.
var validate = validator.New()

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, describeValidation(err)
	}

	var err error
	cfg.LogLevel, err = parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return nil, fmt.Errorf("WP_LOG_LEVEL: %w", err)
	}

	cfg.AudioBitrate = strings.ToLower(strings.TrimSpace(cfg.AudioBitrate))
	if !validBitrate(cfg.AudioBitrate) {
		return nil, fmt.Errorf("WP_AUDIO_BITRATE: недопустимое значение %q (пример: 128k)", cfg.AudioBitrate)
	}

	// Директории приводятся к абсолютным путям
	cfg.UploadDir, err = filepath.Abs(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("WP_UPLOAD_DIR: %w", err)
	}
	cfg.ConvertedDir, err = filepath.Abs(cfg.ConvertedDir)
	if err != nil {
		return nil, fmt.Errorf("WP_CONVERTED_DIR: %w", err)
	}
	if cfg.UploadDir == cfg.ConvertedDir {
		return nil, fmt.Errorf("WP_CONVERTED_DIR: должна отличаться от WP_UPLOAD_DIR (%s)", cfg.UploadDir)
	}
	if cfg.FFmpegPath != "" {
		if cfg.FFmpegPath, err = filepath.Abs(cfg.FFmpegPath); err != nil {
			return nil, fmt.Errorf("WP_FFMPEG_PATH: %w", err)
		}
	}
	if cfg.StaticDir != "" {
		if cfg.StaticDir, err = filepath.Abs(cfg.StaticDir); err != nil {
			return nil, fmt.Errorf("WP_STATIC_DIR: %w", err)
		}
	}

	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)

	return cfg, nil
}

// TLSEnabled возвращает true, если заданы сертификат и ключ.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// envNames — соответствие полей структуры переменным окружения для сообщений.
var envNames = map[string]string{
	"Port":                   "WP_PORT",
	"UploadDir":              "WP_UPLOAD_DIR",
	"ConvertedDir":           "WP_CONVERTED_DIR",
	"MaxFileSize":            "WP_MAX_FILE_SIZE",
	"MaxFilesPerUpload":      "WP_MAX_FILES_PER_UPLOAD",
	"ConvertTimeout":         "WP_CONVERT_TIMEOUT",
	"AudioBitrate":           "WP_AUDIO_BITRATE",
	"AudioChannels":          "WP_AUDIO_CHANNELS",
	"AudioSampleRate":        "WP_AUDIO_SAMPLE_RATE",
	"MaxParallelConversions": "WP_MAX_PARALLEL_CONVERSIONS",
	"SweepInterval":          "WP_SWEEP_INTERVAL",
	"OrphanTTL":              "WP_ORPHAN_TTL",
	"LogFormat":              "WP_LOG_FORMAT",
	"ShutdownTimeout":        "WP_SHUTDOWN_TIMEOUT",
	"ReadTimeout":            "WP_HTTP_READ_TIMEOUT",
	"WriteTimeout":           "WP_HTTP_WRITE_TIMEOUT",
	"IdleTimeout":            "WP_HTTP_IDLE_TIMEOUT",
	"TLSCert":                "WP_TLS_CERT",
	"TLSKey":                 "WP_TLS_KEY",
}

// describeValidation превращает ошибку validator в сообщение с именем
// переменной окружения (первое нарушенное правило).
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("некорректная конфигурация: %w", err)
	}

	fe := verrs[0]
	name := envNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s: обязательная переменная окружения не задана", name)
	case "required_with":
		return fmt.Errorf("%s: должна быть задана вместе с парной переменной TLS", name)
	case "oneof":
		return fmt.Errorf("%s: недопустимое значение %v, допустимые: %s", name, fe.Value(), fe.Param())
	case "min", "max", "gt":
		return fmt.Errorf("%s: значение %v вне допустимого диапазона (%s %s)", name, fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Errorf("%s: значение %v не прошло проверку %s", name, fe.Value(), fe.Tag())
	}
}

// validBitrate проверяет формат битрейта: число с необязательным суффиксом k.
func validBitrate(s string) bool {
	digits := strings.TrimSuffix(s, "k")
	if digits == "" {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// normalizeOrigins убирает пробелы, пустые значения и завершающий '/'.
func normalizeOrigins(origins []string) []string {
	result := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			result = append(result, o)
		}
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
