// Пакет filestore — операции с физическими файлами на диске.
// Две директории: загруженные WAV (uploads) и результаты конвертации
// (converted). Доступ к ФС идёт через afero.Fs, в продакшене — OsFs.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bigkaa/wavpipe/internal/domain/naming"
)

// ErrExists — целевой файл уже существует (коллизия имён).
var ErrExists = errors.New("файл уже существует")

// ErrInvalidName — имя файла содержит разделители пути или пустое.
var ErrInvalidName = errors.New("недопустимое имя файла")

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	fs           afero.Fs
	uploadDir    string
	convertedDir string

	// mu сериализует проверку существования и переименование,
	// чтобы два переименования не заняли одно имя.
	mu sync.Mutex
}

// SaveResult — результат сохранения загруженного файла.
type SaveResult struct {
	// Name — имя файла в директории uploads
	Name string
	// Path — абсолютный путь файла
	Path string
	// Size — размер записанных данных в байтах
	Size int64
}

// FileInfo — файл на диске, обнаруженный при сканировании.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// New создаёт FileStore и создаёт обе директории, если их нет.
func New(fs afero.Fs, uploadDir, convertedDir string) (*FileStore, error) {
	for _, dir := range []string{uploadDir, convertedDir} {
		if err := fs.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}

	return &FileStore{
		fs:           fs,
		uploadDir:    uploadDir,
		convertedDir: convertedDir,
	}, nil
}

// Fs возвращает файловую систему хранилища.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

// UploadDir возвращает директорию загруженных файлов.
func (s *FileStore) UploadDir() string {
	return s.uploadDir
}

// ConvertedDir возвращает директорию результатов конвертации.
func (s *FileStore) ConvertedDir() string {
	return s.convertedDir
}

// UploadPath возвращает путь файла в директории uploads.
func (s *FileStore) UploadPath(name string) string {
	return filepath.Join(s.uploadDir, name)
}

// ConvertedPath возвращает путь файла в директории converted.
func (s *FileStore) ConvertedPath(name string) string {
	return filepath.Join(s.convertedDir, name)
}

// SaveUpload записывает данные из reader в директорию uploads.
// Имя на диске генерируется из оригинального имени: {ts}_{uuid8}_{name}{ext}.
// Если limit > 0 и данных больше limit байт, возвращается *TooLargeError.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *FileStore) SaveUpload(reader io.Reader, originalName string, limit int64) (*SaveResult, error) {
	name := generateStorageName(originalName)
	fullPath := s.UploadPath(name)
	tmpPath := fullPath + ".tmp"

	f, err := s.fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src := reader
	if limit > 0 {
		src = io.LimitReader(reader, limit+1)
	}

	size, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if limit > 0 && size > limit {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return nil, &TooLargeError{Limit: limit}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(tmpPath, fullPath); err != nil {
		_ = s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		Name: name,
		Path: fullPath,
		Size: size,
	}, nil
}

// RenameUpload переименовывает файл в директории uploads в newName,
// не перезаписывая существующий файл. Возвращает новый путь.
// ErrExists — целевое имя занято.
func (s *FileStore) RenameUpload(oldPath, newName string) (string, error) {
	if err := validateName(newName); err != nil {
		return "", err
	}
	newPath := s.UploadPath(newName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if oldPath == newPath {
		return newPath, nil
	}

	if _, err := s.fs.Stat(newPath); err == nil {
		return "", fmt.Errorf("%s: %w", newName, ErrExists)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("ошибка проверки %s: %w", newName, err)
	}

	if err := s.fs.Rename(oldPath, newPath); err != nil {
		return "", fmt.Errorf("ошибка переименования %s → %s: %w", filepath.Base(oldPath), newName, err)
	}
	return newPath, nil
}

// MoveBack возвращает файл на прежнее место (откат RenameUpload).
func (s *FileStore) MoveBack(currentPath, previousPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Rename(currentPath, previousPath); err != nil {
		return fmt.Errorf("ошибка отката переименования: %w", err)
	}
	return nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(path string) (afero.File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s: %w", filepath.Base(path), os.ErrNotExist)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// OpenConverted открывает M4A-файл по имени. Имя не должно содержать
// компонентов пути.
func (s *FileStore) OpenConverted(name string) (afero.File, os.FileInfo, error) {
	if err := validateName(name); err != nil {
		return nil, nil, err
	}

	f, err := s.Open(s.ConvertedPath(name))
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("ошибка получения stat файла %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s — директория: %w", name, os.ErrNotExist)
	}
	return f, info, nil
}

// Remove удаляет файл. Отсутствие файла ошибкой не считается.
func (s *FileStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	err := s.fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Exists проверяет существование обычного файла.
func (s *FileStore) Exists(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Size возвращает размер файла.
func (s *FileStore) Size(path string) (int64, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", filepath.Base(path), err)
	}
	return info.Size(), nil
}

// CheckWritable проверяет, что обе директории доступны на запись.
func (s *FileStore) CheckWritable() map[string]error {
	result := make(map[string]error, 2)
	for key, dir := range map[string]string{"uploads": s.uploadDir, "converted": s.convertedDir} {
		probe := filepath.Join(dir, ".health_check")
		if err := afero.WriteFile(s.fs, probe, []byte("ok"), 0o600); err != nil {
			result[key] = err
			continue
		}
		_ = s.fs.Remove(probe)
		result[key] = nil
	}
	return result
}

// ListFiles возвращает обычные файлы верхнего уровня обеих директорий.
func (s *FileStore) ListFiles() ([]FileInfo, error) {
	var files []FileInfo
	for _, dir := range []string{s.uploadDir, s.convertedDir} {
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("ошибка чтения директории %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".health_check") {
				continue
			}
			files = append(files, FileInfo{
				Path:    filepath.Join(dir, e.Name()),
				Size:    e.Size(),
				ModTime: e.ModTime(),
			})
		}
	}
	return files, nil
}

// TooLargeError — файл превышает допустимый размер.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("размер файла превышает %d байт", e.Limit)
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {timestamp}_{uuid8}_{name}{ext}
// Пример: 20260221150405_a1b2c3d4_track-001.wav
func generateStorageName(originalName string) string {
	base, ext := naming.SplitExt(originalName)
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = ".wav"
	}

	name := naming.Sanitize(base)
	// Ограничиваем длину имени для предотвращения проблем с FS
	if runes := []rune(name); len(runes) > 50 {
		name = naming.Sanitize(string(runes[:50]))
	}

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]

	return fmt.Sprintf("%s_%s_%s%s", ts, uid, name, ext)
}

// validateName проверяет, что имя — один компонент пути.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}
