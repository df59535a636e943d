package filestore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// newTestStore создаёт FileStore поверх MemMapFs.
func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(afero.NewMemMapFs(), "/data/uploads", "/data/converted")
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	return s
}

// TestNew_CreatesDirectories проверяет создание обеих директорий на реальном диске.
func TestNew_CreatesDirectories(t *testing.T) {
	root := t.TempDir()
	up := filepath.Join(root, "uploads")
	conv := filepath.Join(root, "converted")

	s, err := New(afero.NewOsFs(), up, conv)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if s.UploadDir() != up || s.ConvertedDir() != conv {
		t.Errorf("неверные директории: %s, %s", s.UploadDir(), s.ConvertedDir())
	}

	for _, dir := range []string{up, conv} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("директория %s не создана: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s не является директорией", dir)
		}
	}
}

// TestSaveUpload проверяет сохранение файла и формат имени на диске.
func TestSaveUpload(t *testing.T) {
	s := newTestStore(t)
	content := []byte("RIFF....WAVEfmt тестовые данные")

	result, err := s.SaveUpload(bytes.NewReader(content), "track-001.WAV", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}
	if !strings.Contains(result.Name, "track-001") {
		t.Errorf("имя файла должно содержать оригинальное имя: %s", result.Name)
	}
	if !strings.HasSuffix(result.Name, ".wav") {
		t.Errorf("расширение должно быть приведено к нижнему регистру: %s", result.Name)
	}
	if result.Path != s.UploadPath(result.Name) {
		t.Errorf("путь: ожидалось %s, получено %s", s.UploadPath(result.Name), result.Path)
	}

	data, err := afero.ReadFile(s.Fs(), result.Path)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	// Временный файл не должен остаться
	if exists, _ := afero.Exists(s.Fs(), result.Path+".tmp"); exists {
		t.Error("временный .tmp файл не удалён")
	}
}

// TestSaveUpload_UniqueNames проверяет уникальность имён для одинаковых файлов.
func TestSaveUpload_UniqueNames(t *testing.T) {
	s := newTestStore(t)

	a, err := s.SaveUpload(strings.NewReader("a"), "same.wav", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	b, err := s.SaveUpload(strings.NewReader("b"), "same.wav", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if a.Name == b.Name {
		t.Errorf("имена должны различаться: %s", a.Name)
	}
}

// TestSaveUpload_TooLarge проверяет отказ при превышении лимита.
func TestSaveUpload_TooLarge(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveUpload(strings.NewReader(strings.Repeat("x", 11)), "big.wav", 10)
	var tle *TooLargeError
	if !errors.As(err, &tle) {
		t.Fatalf("ожидалась TooLargeError, получено: %v", err)
	}
	if tle.Limit != 10 {
		t.Errorf("Limit: ожидалось 10, получено %d", tle.Limit)
	}

	files, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ошибка листинга: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("после отказа не должно остаться файлов, найдено %d", len(files))
	}
}

// TestSaveUpload_ExactLimit проверяет, что файл ровно в лимит принимается.
func TestSaveUpload_ExactLimit(t *testing.T) {
	s := newTestStore(t)

	result, err := s.SaveUpload(strings.NewReader(strings.Repeat("x", 10)), "ok.wav", 10)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if result.Size != 10 {
		t.Errorf("размер: ожидалось 10, получено %d", result.Size)
	}
}

// errReader — reader, всегда возвращающий ошибку.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// TestSaveUpload_ReaderError проверяет очистку при ошибке чтения.
func TestSaveUpload_ReaderError(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveUpload(errReader{}, "broken.wav", 0); err == nil {
		t.Fatal("ожидалась ошибка")
	}

	files, _ := s.ListFiles()
	if len(files) != 0 {
		t.Errorf("временный файл не удалён: %v", files)
	}
}

// TestRenameUpload проверяет переименование без перезаписи.
func TestRenameUpload(t *testing.T) {
	s := newTestStore(t)
	res, err := s.SaveUpload(strings.NewReader("data"), "track-001.wav", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	newPath, err := s.RenameUpload(res.Path, "track.wav")
	if err != nil {
		t.Fatalf("ошибка переименования: %v", err)
	}
	if newPath != s.UploadPath("track.wav") {
		t.Errorf("путь: ожидалось %s, получено %s", s.UploadPath("track.wav"), newPath)
	}
	if s.Exists(res.Path) {
		t.Error("старый файл должен исчезнуть")
	}
	if !s.Exists(newPath) {
		t.Error("новый файл не найден")
	}
}

// TestRenameUpload_NoClobber проверяет, что занятое имя не перезаписывается.
func TestRenameUpload_NoClobber(t *testing.T) {
	s := newTestStore(t)
	if err := afero.WriteFile(s.Fs(), s.UploadPath("track.wav"), []byte("first"), 0o640); err != nil {
		t.Fatal(err)
	}
	res, err := s.SaveUpload(strings.NewReader("second"), "track-002.wav", 0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.RenameUpload(res.Path, "track.wav")
	if !errors.Is(err, ErrExists) {
		t.Fatalf("ожидалась ErrExists, получено: %v", err)
	}

	data, _ := afero.ReadFile(s.Fs(), s.UploadPath("track.wav"))
	if string(data) != "first" {
		t.Errorf("существующий файл перезаписан: %q", data)
	}
	if !s.Exists(res.Path) {
		t.Error("исходный файл должен остаться на месте")
	}
}

// TestRenameUpload_InvalidName проверяет отказ для имён с путями.
func TestRenameUpload_InvalidName(t *testing.T) {
	s := newTestStore(t)
	res, _ := s.SaveUpload(strings.NewReader("x"), "a.wav", 0)

	for _, name := range []string{"", "..", "../escape.wav", `sub\file.wav`} {
		if _, err := s.RenameUpload(res.Path, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("RenameUpload(%q): ожидалась ErrInvalidName, получено %v", name, err)
		}
	}
}

// TestMoveBack проверяет откат переименования.
func TestMoveBack(t *testing.T) {
	s := newTestStore(t)
	res, _ := s.SaveUpload(strings.NewReader("x"), "a-b.wav", 0)

	newPath, err := s.RenameUpload(res.Path, "a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MoveBack(newPath, res.Path); err != nil {
		t.Fatalf("ошибка отката: %v", err)
	}
	if !s.Exists(res.Path) || s.Exists(newPath) {
		t.Error("файл не возвращён на прежнее место")
	}
}

// TestOpenConverted проверяет открытие M4A и защиту от path traversal.
func TestOpenConverted(t *testing.T) {
	s := newTestStore(t)
	if err := afero.WriteFile(s.Fs(), s.ConvertedPath("track.m4a"), []byte("m4a"), 0o640); err != nil {
		t.Fatal(err)
	}

	f, info, err := s.OpenConverted("track.m4a")
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()
	if info.Size() != 3 {
		t.Errorf("размер: ожидалось 3, получено %d", info.Size())
	}

	if _, _, err := s.OpenConverted("missing.m4a"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ожидалась os.ErrNotExist, получено: %v", err)
	}
	if _, _, err := s.OpenConverted("../uploads/x.wav"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("ожидалась ErrInvalidName, получено: %v", err)
	}
}

// TestRemove проверяет удаление и идемпотентность.
func TestRemove(t *testing.T) {
	s := newTestStore(t)
	res, _ := s.SaveUpload(strings.NewReader("x"), "a.wav", 0)

	if err := s.Remove(res.Path); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if s.Exists(res.Path) {
		t.Error("файл должен быть удалён")
	}
	if err := s.Remove(res.Path); err != nil {
		t.Errorf("повторное удаление не должно возвращать ошибку: %v", err)
	}
	if err := s.Remove(""); err != nil {
		t.Errorf("пустой путь не должен возвращать ошибку: %v", err)
	}
}

// TestListFiles проверяет сканирование обеих директорий.
func TestListFiles(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.SaveUpload(strings.NewReader("x"), "a.wav", 0)
	_ = afero.WriteFile(s.Fs(), s.ConvertedPath("a.m4a"), []byte("y"), 0o640)
	_ = s.Fs().MkdirAll(filepath.Join(s.UploadDir(), "nested"), 0o750)

	files, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ошибка листинга: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ожидалось 2 файла, получено %d", len(files))
	}
}

// TestCheckWritable проверяет проверку записи в директории.
func TestCheckWritable(t *testing.T) {
	s := newTestStore(t)

	for dir, err := range s.CheckWritable() {
		if err != nil {
			t.Errorf("%s: неожиданная ошибка: %v", dir, err)
		}
	}

	ro := afero.NewReadOnlyFs(s.Fs())
	roStore := &FileStore{fs: ro, uploadDir: s.UploadDir(), convertedDir: s.ConvertedDir()}
	for dir, err := range roStore.CheckWritable() {
		if err == nil {
			t.Errorf("%s: ожидалась ошибка для read-only ФС", dir)
		}
	}
}

// TestGenerateStorageName проверяет генерацию имени для хранения.
func TestGenerateStorageName(t *testing.T) {
	tests := []struct {
		original string
		contains string
		ext      string
	}{
		{"track-001.wav", "track-001", ".wav"},
		{"my:song?.WAV", "my_song", ".wav"},
		{"noext", "noext", ".wav"},
		{"???.wav", "output", ".wav"},
	}

	for _, tt := range tests {
		name := generateStorageName(tt.original)
		if !strings.Contains(name, tt.contains) {
			t.Errorf("generateStorageName(%q) = %q, должно содержать %q", tt.original, name, tt.contains)
		}
		if !strings.HasSuffix(name, tt.ext) {
			t.Errorf("generateStorageName(%q) = %q, должно заканчиваться на %q", tt.original, name, tt.ext)
		}
		if strings.ContainsAny(name, `/\<>:"|?*`) {
			t.Errorf("generateStorageName(%q) = %q содержит недопустимые символы", tt.original, name)
		}
	}
}

// TestGenerateStorageName_LongName проверяет усечение длинного имени.
func TestGenerateStorageName_LongName(t *testing.T) {
	name := generateStorageName(strings.Repeat("a", 200) + ".wav")
	// timestamp(14) + _ + uuid8(8) + _ + name(≤50) + .wav(4)
	if len(name) > 14+1+8+1+50+4 {
		t.Errorf("имя слишком длинное: %d символов", len(name))
	}
}
