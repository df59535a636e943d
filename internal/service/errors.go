// Пакет service — бизнес-логика wavpipe: оркестрация переходов жизненного
// цикла записи (загрузка, переименование, конвертация, удаление, скачивание).
// errors.go — типизированная ошибка сервисного слоя и отображение ошибок
// реестра на HTTP-коды.
package service

import (
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/wavpipe/internal/api/errors"
	"github.com/bigkaa/wavpipe/internal/domain/lifecycle"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// Error — ошибка операции с HTTP-кодом и машиночитаемым кодом.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code, format string, args ...any) *Error {
	return &Error{
		StatusCode: status,
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
	}
}

// notFound — запись с указанным id не найдена.
func notFound(id string) *Error {
	return newError(http.StatusNotFound, apierrors.CodeNotFound, "Файл с ID %s не найден", id)
}

// fromRegistry отображает ошибки реестра и графа статусов на *Error.
// Возвращает nil для nil.
func fromRegistry(id string, err error) *Error {
	if err == nil {
		return nil
	}

	var opErr *lifecycle.OperationError
	var trErr *lifecycle.TransitionError

	switch {
	case errors.Is(err, registry.ErrNotFound):
		return notFound(id)
	case errors.Is(err, registry.ErrBusy):
		return newError(http.StatusConflict, apierrors.CodeOperationInProgress,
			"Над файлом %s уже выполняется операция, повторите позже", id)
	case errors.Is(err, registry.ErrNameCollision):
		return newError(http.StatusConflict, apierrors.CodeNameCollision,
			"Целевое имя файла уже занято")
	case errors.As(err, &opErr):
		return newError(http.StatusBadRequest, apierrors.CodeInvalidState,
			"Операция %s недоступна: текущий статус %s, требуется один из %v",
			opErr.Op, opErr.Current, opErr.Required)
	case errors.As(err, &trErr):
		return newError(http.StatusBadRequest, apierrors.CodeInvalidState,
			"Недопустимый переход статуса %s → %s", trErr.From, trErr.To)
	default:
		return newError(http.StatusInternalServerError, apierrors.CodeInternalError,
			"Внутренняя ошибка: %s", err.Error())
	}
}
