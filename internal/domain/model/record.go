// Пакет model — доменные модели wavpipe.
// FileRecord — запись о загруженном WAV-файле, которая проходит
// жизненный цикл upload → rename → convert и хранится только в памяти.
package model

import (
	"time"
)

// Status — статус записи в жизненном цикле файла.
type Status string

const (
	// StatusUploaded — файл загружен и лежит на диске под серверным именем
	StatusUploaded Status = "uploaded"
	// StatusRenamed — файл переименован по правилу усечения имени
	StatusRenamed Status = "renamed"
	// StatusConverted — M4A успешно создан
	StatusConverted Status = "converted"
	// StatusConversionFailed — последняя попытка конвертации завершилась ошибкой
	// (не конечный статус, допускается повтор)
	StatusConversionFailed Status = "conversion_failed"
)

// AllStatuses — все статусы в порядке жизненного цикла.
var AllStatuses = []Status{StatusUploaded, StatusRenamed, StatusConverted, StatusConversionFailed}

// IsValid проверяет, что статус входит в допустимый набор.
func (s Status) IsValid() bool {
	switch s {
	case StatusUploaded, StatusRenamed, StatusConverted, StatusConversionFailed:
		return true
	default:
		return false
	}
}

// FileRecord — метаданные одного отслеживаемого файла.
// Поля ServerPath и ConvertedFilePath — абсолютные пути, в API не отдаются.
type FileRecord struct {
	// ID — уникальный идентификатор (UUID v4), неизменяемый
	ID string `json:"id"`

	// OriginalName — имя файла от клиента (UTF-8, NFC).
	// Устанавливается один раз при загрузке и больше не меняется.
	OriginalName string `json:"originalName"`

	// ServerFileName — текущее имя WAV-файла на диске
	ServerFileName string `json:"serverFileName"`

	// ServerPath — абсолютный путь WAV-файла на диске
	ServerPath string `json:"-"`

	// Status — текущий статус
	Status Status `json:"status"`

	// Size — размер загруженного файла в байтах
	Size int64 `json:"size"`

	// Mimetype — MIME-тип (заявленный клиентом или определённый по содержимому)
	Mimetype string `json:"mimetype"`

	// UploadTimestamp — время загрузки (UTC)
	UploadTimestamp time.Time `json:"uploadTimestamp"`

	// RenamedTimestamp — время переименования, nil до перехода в renamed
	RenamedTimestamp *time.Time `json:"renamedTimestamp,omitempty"`

	// ConvertedFileName — имя M4A-файла, пусто до успешной конвертации
	ConvertedFileName string `json:"convertedFileName,omitempty"`

	// ConvertedFilePath — абсолютный путь M4A-файла
	ConvertedFilePath string `json:"-"`

	// DownloadURL — относительный URL для скачивания M4A
	DownloadURL string `json:"downloadUrl,omitempty"`

	// ConvertedTimestamp — время успешной конвертации
	ConvertedTimestamp *time.Time `json:"convertedTimestamp,omitempty"`

	// ConversionError — причина последней неудачной конвертации
	ConversionError string `json:"conversionError,omitempty"`
}

// Clone возвращает независимую копию записи.
func (r *FileRecord) Clone() *FileRecord {
	c := *r
	if r.RenamedTimestamp != nil {
		ts := *r.RenamedTimestamp
		c.RenamedTimestamp = &ts
	}
	if r.ConvertedTimestamp != nil {
		ts := *r.ConvertedTimestamp
		c.ConvertedTimestamp = &ts
	}
	return &c
}

// IsConverted проверяет, что M4A готов к скачиванию.
func (r *FileRecord) IsConverted() bool {
	return r.Status == StatusConverted
}

// NewRecord — данные для регистрации новой записи.
type NewRecord struct {
	OriginalName   string
	ServerFileName string
	ServerPath     string
	Size           int64
	Mimetype       string
}

// FileSummary — представление записи для списков в UI.
type FileSummary struct {
	ID                string     `json:"id"`
	OriginalName      string     `json:"originalName"`
	ServerFileName    string     `json:"serverFileName"`
	Size              int64      `json:"size"`
	Mimetype          string     `json:"mimetype"`
	UploadTimestamp   time.Time  `json:"uploadTimestamp"`
	Status            Status     `json:"status"`
	RenamedTimestamp  *time.Time `json:"renamedTimestamp,omitempty"`
	ConvertedFileName string     `json:"convertedFileName,omitempty"`
	DownloadURL       string     `json:"downloadUrl,omitempty"`
	ConversionError   string     `json:"conversionError,omitempty"`
}

// Summary преобразует запись в представление для списков.
func (r *FileRecord) Summary() FileSummary {
	return FileSummary{
		ID:                r.ID,
		OriginalName:      r.OriginalName,
		ServerFileName:    r.ServerFileName,
		Size:              r.Size,
		Mimetype:          r.Mimetype,
		UploadTimestamp:   r.UploadTimestamp,
		Status:            r.Status,
		RenamedTimestamp:  r.RenamedTimestamp,
		ConvertedFileName: r.ConvertedFileName,
		DownloadURL:       r.DownloadURL,
		ConversionError:   r.ConversionError,
	}
}
