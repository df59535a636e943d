package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// allKeys — все переменные окружения, которые читает Load.
var allKeys = []string{
	"WP_PORT", "WP_UPLOAD_DIR", "WP_CONVERTED_DIR", "WP_FFMPEG_PATH",
	"WP_MAX_FILE_SIZE", "WP_MAX_FILES_PER_UPLOAD", "WP_CONVERT_TIMEOUT",
	"WP_AUDIO_BITRATE", "WP_AUDIO_CHANNELS", "WP_AUDIO_SAMPLE_RATE",
	"WP_MAX_PARALLEL_CONVERSIONS", "WP_DELETE_SOURCE_AFTER_CONVERT",
	"WP_ALLOWED_ORIGINS", "WP_STATIC_DIR", "WP_SWEEP_INTERVAL", "WP_ORPHAN_TTL",
	"WP_LOG_LEVEL", "WP_LOG_FORMAT", "WP_SHUTDOWN_TIMEOUT",
	"WP_HTTP_READ_TIMEOUT", "WP_HTTP_WRITE_TIMEOUT", "WP_HTTP_IDLE_TIMEOUT",
	"WP_TLS_CERT", "WP_TLS_KEY",
}

// clearAllWPEnvVars очищает все переменные WP_* на время теста, а также
// их варианты без префикса (envconfig читает их как запасные).
// Исходные значения восстанавливаются через t.Setenv.
func clearAllWPEnvVars(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		for _, key := range []string{k, strings.TrimPrefix(k, "WP_")} {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

// setEnvVars устанавливает переменные окружения для теста.
func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

// TestLoad_Defaults проверяет значения по умолчанию.
func TestLoad_Defaults(t *testing.T) {
	clearAllWPEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 3001 {
		t.Errorf("Port: ожидалось 3001, получено %d", cfg.Port)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("MaxFileSize: ожидалось 100MiB, получено %d", cfg.MaxFileSize)
	}
	if cfg.MaxFilesPerUpload != 10 {
		t.Errorf("MaxFilesPerUpload: ожидалось 10, получено %d", cfg.MaxFilesPerUpload)
	}
	if cfg.ConvertTimeout != 10*time.Minute {
		t.Errorf("ConvertTimeout: ожидалось 10m, получено %s", cfg.ConvertTimeout)
	}
	if cfg.AudioBitrate != "128k" || cfg.AudioChannels != 2 || cfg.AudioSampleRate != 44100 {
		t.Errorf("параметры аудио: %s, %d, %d", cfg.AudioBitrate, cfg.AudioChannels, cfg.AudioSampleRate)
	}
	if cfg.MaxParallelConversions != 0 {
		t.Errorf("MaxParallelConversions: ожидалось 0, получено %d", cfg.MaxParallelConversions)
	}
	if cfg.DeleteSourceAfterConvert {
		t.Error("DeleteSourceAfterConvert: ожидалось false")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("AllowedOrigins: %v", cfg.AllowedOrigins)
	}
	if cfg.SweepInterval != time.Hour || cfg.OrphanTTL != 24*time.Hour {
		t.Errorf("сборщик: %s, %s", cfg.SweepInterval, cfg.OrphanTTL)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "json" {
		t.Errorf("логирование: %v, %s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 30s, получено %s", cfg.ShutdownTimeout)
	}
	if cfg.WriteTimeout != 15*time.Minute {
		t.Errorf("WriteTimeout: ожидалось 15m, получено %s", cfg.WriteTimeout)
	}
	if cfg.TLSEnabled() {
		t.Error("TLS не должен быть включён по умолчанию")
	}
	if !filepath.IsAbs(cfg.UploadDir) || !filepath.IsAbs(cfg.ConvertedDir) || !filepath.IsAbs(cfg.FFmpegPath) {
		t.Errorf("пути должны быть абсолютными: %s, %s, %s", cfg.UploadDir, cfg.ConvertedDir, cfg.FFmpegPath)
	}
	if cfg.StaticDir != "" {
		t.Errorf("StaticDir: ожидалась пустая строка, получено %q", cfg.StaticDir)
	}
}

// TestLoad_CustomValues проверяет чтение заданных значений.
func TestLoad_CustomValues(t *testing.T) {
	clearAllWPEnvVars(t)
	setEnvVars(t, map[string]string{
		"WP_PORT":                        "8080",
		"WP_UPLOAD_DIR":                  "/tmp/wp/up",
		"WP_CONVERTED_DIR":               "/tmp/wp/conv",
		"WP_MAX_FILE_SIZE":               "1GiB",
		"WP_MAX_FILES_PER_UPLOAD":        "25",
		"WP_CONVERT_TIMEOUT":             "30s",
		"WP_AUDIO_BITRATE":               "192K",
		"WP_MAX_PARALLEL_CONVERSIONS":    "4",
		"WP_DELETE_SOURCE_AFTER_CONVERT": "true",
		"WP_ALLOWED_ORIGINS":             "https://tuti-tools.onrender.com/, http://localhost:3000",
		"WP_LOG_LEVEL":                   "debug",
		"WP_LOG_FORMAT":                  "text",
		"WP_TLS_CERT":                    "/certs/tls.crt",
		"WP_TLS_KEY":                     "/certs/tls.key",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port: ожидалось 8080, получено %d", cfg.Port)
	}
	if cfg.UploadDir != "/tmp/wp/up" || cfg.ConvertedDir != "/tmp/wp/conv" {
		t.Errorf("директории: %s, %s", cfg.UploadDir, cfg.ConvertedDir)
	}
	if cfg.MaxFileSize != 1<<30 {
		t.Errorf("MaxFileSize: ожидалось 1GiB, получено %d", cfg.MaxFileSize)
	}
	if cfg.MaxFilesPerUpload != 25 {
		t.Errorf("MaxFilesPerUpload: ожидалось 25, получено %d", cfg.MaxFilesPerUpload)
	}
	if cfg.ConvertTimeout != 30*time.Second {
		t.Errorf("ConvertTimeout: ожидалось 30s, получено %s", cfg.ConvertTimeout)
	}
	if cfg.AudioBitrate != "192k" {
		t.Errorf("AudioBitrate: ожидалось 192k, получено %s", cfg.AudioBitrate)
	}
	if cfg.MaxParallelConversions != 4 || !cfg.DeleteSourceAfterConvert {
		t.Errorf("конвертация: %d, %v", cfg.MaxParallelConversions, cfg.DeleteSourceAfterConvert)
	}
	want := []string{"https://tuti-tools.onrender.com", "http://localhost:3000"}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != want[0] || cfg.AllowedOrigins[1] != want[1] {
		t.Errorf("AllowedOrigins: ожидалось %v, получено %v", want, cfg.AllowedOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Errorf("логирование: %v, %s", cfg.LogLevel, cfg.LogFormat)
	}
	if !cfg.TLSEnabled() {
		t.Error("TLS должен быть включён")
	}
}

// TestLoad_MaxFileSizeBytes проверяет размер, заданный числом байт.
func TestLoad_MaxFileSizeBytes(t *testing.T) {
	clearAllWPEnvVars(t)
	setEnvVars(t, map[string]string{"WP_MAX_FILE_SIZE": "1048576"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.MaxFileSize != 1048576 {
		t.Errorf("MaxFileSize: ожидалось 1048576, получено %d", cfg.MaxFileSize)
	}
	if cfg.MaxFileSize.String() != "1.0 MiB" {
		t.Errorf("String(): ожидалось \"1.0 MiB\", получено %q", cfg.MaxFileSize.String())
	}
}

// TestLoad_Invalid проверяет ошибки для некорректных значений.
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{"порт вне диапазона", map[string]string{"WP_PORT": "70000"}, "WP_PORT"},
		{"порт не число", map[string]string{"WP_PORT": "abc"}, "PORT"},
		{"размер некорректен", map[string]string{"WP_MAX_FILE_SIZE": "много"}, "MAX_FILE_SIZE"},
		{"ноль файлов", map[string]string{"WP_MAX_FILES_PER_UPLOAD": "0"}, "WP_MAX_FILES_PER_UPLOAD"},
		{"таймаут некорректен", map[string]string{"WP_CONVERT_TIMEOUT": "десять"}, "CONVERT_TIMEOUT"},
		{"нулевой таймаут", map[string]string{"WP_CONVERT_TIMEOUT": "0s"}, "WP_CONVERT_TIMEOUT"},
		{"битрейт некорректен", map[string]string{"WP_AUDIO_BITRATE": "fast"}, "WP_AUDIO_BITRATE"},
		{"частота вне диапазона", map[string]string{"WP_AUDIO_SAMPLE_RATE": "100"}, "WP_AUDIO_SAMPLE_RATE"},
		{"отрицательный параллелизм", map[string]string{"WP_MAX_PARALLEL_CONVERSIONS": "-1"}, "WP_MAX_PARALLEL_CONVERSIONS"},
		{"уровень логов", map[string]string{"WP_LOG_LEVEL": "verbose"}, "WP_LOG_LEVEL"},
		{"формат логов", map[string]string{"WP_LOG_FORMAT": "xml"}, "WP_LOG_FORMAT"},
		{"TLS без ключа", map[string]string{"WP_TLS_CERT": "/certs/tls.crt"}, "WP_TLS_KEY"},
		{"одинаковые директории", map[string]string{"WP_UPLOAD_DIR": "/data", "WP_CONVERTED_DIR": "/data"}, "WP_CONVERTED_DIR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAllWPEnvVars(t)
			setEnvVars(t, tt.env)

			_, err := Load()
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("ошибка должна упоминать %s: %v", tt.wantKey, err)
			}
		})
	}
}

// TestParseLogLevel проверяет разбор уровня логирования.
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLogLevel(%q): ошибка = %v, ожидалась ошибка: %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, ожидалось %v", tt.input, got, tt.want)
		}
	}
}

// TestSetupLogger проверяет создание логгера для обоих форматов.
func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	for _, format := range []string{"json", "text"} {
		logger := SetupLogger(&Config{LogFormat: format, LogLevel: slog.LevelWarn})
		if logger == nil {
			t.Fatalf("формат %s: логгер не создан", format)
		}
		if logger.Enabled(t.Context(), slog.LevelInfo) {
			t.Errorf("формат %s: INFO не должен быть включён при уровне WARN", format)
		}
	}
}
