package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/bigkaa/wavpipe/internal/storage/filestore"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// testEnv — окружение сервисных тестов: файловое хранилище в памяти и реестр.
type testEnv struct {
	fs     afero.Fs
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	store, err := filestore.New(fs, "/data/uploads", "/data/converted")
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testEnv{
		fs:     fs,
		store:  store,
		reg:    registry.New(logger),
		logger: logger,
	}
}

// upload загружает WAV с указанным именем и возвращает id записи.
func (e *testEnv) upload(t *testing.T, name string) string {
	t.Helper()

	svc := NewUploadService(e.store, e.reg, 1<<20, e.logger)
	result, svcErr := svc.Upload([]UploadParams{{
		Reader:       bytes.NewReader(wavBytes(64)),
		OriginalName: name,
		ContentType:  "audio/wav",
	}})
	if svcErr != nil {
		t.Fatalf("Ошибка загрузки %s: %v", name, svcErr)
	}
	if len(result.Files) != 1 {
		t.Fatalf("Ожидался 1 принятый файл, получено %d", len(result.Files))
	}
	return result.Files[0].ID
}

// wavBytes возвращает минимальный PCM WAV с dataLen байтами тишины.
func wavBytes(dataLen int) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))     // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))     // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(8000))  // sample rate
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16000)) // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))     // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))    // bits per sample
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

// fakeConverter «конвертирует», записывая содержимое входа с префиксом в
// выходной файл через afero. before вызывается перед записью результата.
type fakeConverter struct {
	fs     afero.Fs
	before func(inputPath string)

	mu    sync.Mutex
	calls []string
}

func (c *fakeConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	c.mu.Lock()
	c.calls = append(c.calls, inputPath)
	c.mu.Unlock()

	if c.before != nil {
		c.before(inputPath)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := afero.ReadFile(c.fs, inputPath)
	if err != nil {
		return fmt.Errorf("входной файл недоступен: %w", err)
	}
	return afero.WriteFile(c.fs, outputPath, append([]byte("M4A:"), data[:8]...), 0o640)
}

func (c *fakeConverter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// failingConverter всегда завершается ошибкой.
type failingConverter struct{}

func (failingConverter) Convert(context.Context, string, string) error {
	return errors.New("ffmpeg завершился с кодом 1")
}
