// Пакет registry — потокобезопасный in-memory реестр записей о файлах.
//
// Записи хранятся в map по id, порядок вставки — в отдельном срезе
// идентификаторов (для списков в UI). Все изменения статуса проходят
// через матрицу lifecycle как compare-and-swap под мьютексом, поэтому
// «запись не найдена» и «неверный статус» — обычные исходы, а не гонки.
//
// Не персистентный: при рестарте все записи теряются.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/wavpipe/internal/domain/lifecycle"
	"github.com/bigkaa/wavpipe/internal/domain/model"
)

// Ошибки реестра.
var (
	// ErrNotFound — записи с таким id нет (или она удалена).
	ErrNotFound = errors.New("запись не найдена")
	// ErrBusy — над записью уже выполняется операция.
	ErrBusy = errors.New("над записью уже выполняется операция")
	// ErrNameCollision — имя или путь уже занят другой записью.
	ErrNameCollision = errors.New("имя уже занято другой записью")
)

// entry — запись плюс служебное состояние, не видимое снаружи.
type entry struct {
	rec *model.FileRecord
	// busy — операция, выполняемая над записью ("" — свободна)
	busy lifecycle.Operation
	// reserved — зарезервированное имя M4A до завершения конвертации
	reserved string
}

// Registry — реестр записей о файлах.
// Использует sync.RWMutex для конкурентного чтения и
// эксклюзивной записи.
type Registry struct {
	mu          sync.RWMutex
	records     map[string]*entry // id → запись
	order       []string          // id в порядке регистрации
	byPath      map[string]string // serverPath → id
	byConverted map[string]string // convertedFileName → id
	logger      *slog.Logger
	now         func() time.Time
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		records:     make(map[string]*entry),
		byPath:      make(map[string]string),
		byConverted: make(map[string]string),
		logger:      logger.With(slog.String("component", "registry")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register создаёт запись в статусе uploaded со свежим UUID.
// ErrNameCollision — путь уже принадлежит другой записи.
func (r *Registry) Register(in model.NewRecord) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byPath[in.ServerPath]; ok {
		return nil, fmt.Errorf("путь %s занят записью %s: %w", in.ServerFileName, owner, ErrNameCollision)
	}

	id := uuid.NewString()
	for r.records[id] != nil {
		id = uuid.NewString()
	}

	rec := &model.FileRecord{
		ID:              id,
		OriginalName:    in.OriginalName,
		ServerFileName:  in.ServerFileName,
		ServerPath:      in.ServerPath,
		Status:          model.StatusUploaded,
		Size:            in.Size,
		Mimetype:        in.Mimetype,
		UploadTimestamp: r.now(),
	}

	r.records[id] = &entry{rec: rec}
	r.order = append(r.order, id)
	r.byPath[in.ServerPath] = id

	r.logger.Debug("Запись зарегистрирована",
		slog.String("file_id", id),
		slog.String("original_name", in.OriginalName),
	)

	return rec.Clone(), nil
}

// FindByID возвращает копию записи по id.
func (r *Registry) FindByID(id string) (*model.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return e.rec.Clone(), nil
}

// FindByConvertedName возвращает копию сконвертированной записи по имени M4A.
// Зарезервированные, но ещё не готовые имена не находятся.
func (r *Registry) FindByConvertedName(name string) (*model.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byConverted[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	e, ok := r.records[id]
	if !ok || e.rec.ConvertedFileName != name || !e.rec.IsConverted() {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return e.rec.Clone(), nil
}

// Claim помечает запись занятой операцией op. Проверяет, что операция
// допустима в текущем статусе (*lifecycle.OperationError иначе) и что
// над записью не выполняется другая операция (ErrBusy).
// Каждый успешный Claim должен завершаться Release.
func (r *Registry) Claim(id string, op lifecycle.Operation) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if e.busy != "" {
		return nil, fmt.Errorf("%s (%s): %w", id, e.busy, ErrBusy)
	}
	if !lifecycle.CanPerform(e.rec.Status, op) {
		return nil, lifecycle.NewOperationError(op, e.rec.Status)
	}

	e.busy = op
	return e.rec.Clone(), nil
}

// Release снимает пометку занятости. Для удалённой записи ничего не делает.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.records[id]; ok {
		e.busy = ""
	}
}

// PathClaimed проверяет, принадлежит ли путь WAV-файла какой-либо записи.
func (r *Registry) PathClaimed(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byPath[path]
	return ok
}

// ReserveConvertedName резервирует имя M4A за записью.
// ErrNameCollision — имя принадлежит другой записи.
// Повторная резервация другого имени снимает предыдущую.
func (r *Registry) ReserveConvertedName(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if owner, taken := r.byConverted[name]; taken && owner != id {
		return fmt.Errorf("%s: %w", name, ErrNameCollision)
	}

	if e.reserved != "" && e.reserved != name {
		delete(r.byConverted, e.reserved)
	}
	e.reserved = name
	r.byConverted[name] = id
	return nil
}

// ReleaseConvertedName снимает резервацию имени, если конвертация не
// завершилась успехом.
func (r *Registry) ReleaseConvertedName(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseReservationLocked(id, name)
}

func (r *Registry) releaseReservationLocked(id, name string) {
	if owner, ok := r.byConverted[name]; ok && owner == id {
		if e, ok := r.records[id]; !ok || e.rec.ConvertedFileName != name {
			delete(r.byConverted, name)
		}
	}
	if e, ok := r.records[id]; ok && e.reserved == name {
		e.reserved = ""
	}
}

// TransitionToRenamed переводит запись uploaded → renamed и обновляет
// имя и путь WAV-файла.
func (r *Registry) TransitionToRenamed(id, newName, newPath string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := lifecycle.Transition(e.rec.Status, model.StatusRenamed); err != nil {
		return nil, err
	}
	if owner, taken := r.byPath[newPath]; taken && owner != id {
		return nil, fmt.Errorf("%s: %w", newName, ErrNameCollision)
	}

	delete(r.byPath, e.rec.ServerPath)
	r.byPath[newPath] = id

	ts := r.now()
	e.rec.ServerFileName = newName
	e.rec.ServerPath = newPath
	e.rec.Status = model.StatusRenamed
	e.rec.RenamedTimestamp = &ts

	return e.rec.Clone(), nil
}

// TransitionToConverted переводит запись в converted. Имя name должно
// быть зарезервировано за записью или свободно.
func (r *Registry) TransitionToConverted(id, name, path, downloadURL string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := lifecycle.Transition(e.rec.Status, model.StatusConverted); err != nil {
		return nil, err
	}
	if owner, taken := r.byConverted[name]; taken && owner != id {
		return nil, fmt.Errorf("%s: %w", name, ErrNameCollision)
	}

	ts := r.now()
	r.byConverted[name] = id
	e.reserved = ""
	e.rec.Status = model.StatusConverted
	e.rec.ConvertedFileName = name
	e.rec.ConvertedFilePath = path
	e.rec.DownloadURL = downloadURL
	e.rec.ConvertedTimestamp = &ts
	e.rec.ConversionError = ""

	return e.rec.Clone(), nil
}

// TransitionToConversionFailed переводит запись в conversion_failed и
// сохраняет причину. Путь WAV не меняется.
func (r *Registry) TransitionToConversionFailed(id, reason string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := lifecycle.Transition(e.rec.Status, model.StatusConversionFailed); err != nil {
		return nil, err
	}

	if e.reserved != "" {
		r.releaseReservationLocked(id, e.reserved)
	}
	e.rec.Status = model.StatusConversionFailed
	e.rec.ConversionError = reason

	return e.rec.Clone(), nil
}

// Delete удаляет запись в любом статусе и возвращает её последнее
// состояние, чтобы вызывающий код удалил файлы.
func (r *Registry) Delete(id string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	delete(r.records, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	if r.byPath[e.rec.ServerPath] == id {
		delete(r.byPath, e.rec.ServerPath)
	}
	for _, name := range []string{e.rec.ConvertedFileName, e.reserved} {
		if name != "" && r.byConverted[name] == id {
			delete(r.byConverted, name)
		}
	}

	r.logger.Debug("Запись удалена",
		slog.String("file_id", id),
		slog.String("status", string(e.rec.Status)),
	)

	return e.rec, nil
}

// ListByStatus возвращает копии записей с любым из указанных статусов
// в порядке регистрации. Без аргументов возвращает все записи.
func (r *Registry) ListByStatus(statuses ...model.Status) []*model.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.FileRecord, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id].rec
		if len(statuses) > 0 && !slices.Contains(statuses, rec.Status) {
			continue
		}
		result = append(result, rec.Clone())
	}
	return result
}

// ClaimedPaths возвращает множество путей, принадлежащих записям:
// WAV-файлы и готовые M4A.
func (r *Registry) ClaimedPaths() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make(map[string]struct{}, len(r.records)*2)
	for _, e := range r.records {
		paths[e.rec.ServerPath] = struct{}{}
		if e.rec.ConvertedFilePath != "" {
			paths[e.rec.ConvertedFilePath] = struct{}{}
		}
	}
	return paths
}

// Count возвращает общее количество записей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// CountByStatus возвращает количество записей с указанным статусом.
func (r *Registry) CountByStatus(status model.Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, e := range r.records {
		if e.rec.Status == status {
			count++
		}
	}
	return count
}
