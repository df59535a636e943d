// Пакет lifecycle — граф статусов записи о файле.
//
// Прямой путь: uploaded → renamed → converted.
// conversion_failed достижим из uploaded и renamed при неудачной
// конвертации и не является конечным: повторная попытка может
// перевести запись в converted или снова в conversion_failed.
// Возврата в uploaded нет ни из одного статуса.
//
// Удаление — не статус, а уничтожение записи, допустимо всегда.
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/wavpipe/internal/domain/model"
)

// Operation — операция над записью.
type Operation string

const (
	OpRename   Operation = "rename"
	OpConvert  Operation = "convert"
	OpDownload Operation = "download"
	OpDelete   Operation = "delete"
)

// Коды ошибок переходов.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidStatus     = "INVALID_STATUS"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[model.Status]map[model.Status]bool{
	model.StatusUploaded: {
		model.StatusRenamed:          true,
		model.StatusConverted:        true,
		model.StatusConversionFailed: true,
	},
	model.StatusRenamed: {
		model.StatusConverted:        true,
		model.StatusConversionFailed: true,
	},
	model.StatusConversionFailed: {
		model.StatusConverted:        true,
		model.StatusConversionFailed: true, // повторная неудача
	},
	model.StatusConverted: {}, // конечный статус
}

// allowedOperations — матрица допустимых операций для каждого статуса.
var allowedOperations = map[model.Status]map[Operation]bool{
	model.StatusUploaded:         {OpRename: true, OpConvert: true, OpDelete: true},
	model.StatusRenamed:          {OpConvert: true, OpDelete: true},
	model.StatusConversionFailed: {OpConvert: true, OpDelete: true},
	model.StatusConverted:        {OpDownload: true, OpDelete: true},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to model.Status) bool {
	transitions, ok := validTransitions[from]
	if !ok {
		return false
	}
	return transitions[to]
}

// Transition проверяет переход from → to и возвращает *TransitionError,
// если он недопустим.
func Transition(from, to model.Status) error {
	if !from.IsValid() || !to.IsValid() {
		return &TransitionError{
			Code:    CodeInvalidStatus,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("недопустимый статус: %q → %q", from, to),
		}
	}

	if !CanTransition(from, to) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
		}
	}
	return nil
}

// CanPerform проверяет, допустима ли операция в указанном статусе.
func CanPerform(status model.Status, op Operation) bool {
	ops, ok := allowedOperations[status]
	if !ok {
		return false
	}
	return ops[op]
}

// RequiredStatuses возвращает статусы, в которых операция допустима,
// в порядке жизненного цикла. Используется в сообщениях об ошибках.
func RequiredStatuses(op Operation) []model.Status {
	var result []model.Status
	for _, s := range model.AllStatuses {
		if allowedOperations[s][op] {
			result = append(result, s)
		}
	}
	return result
}

// TransitionError — ошибка недопустимого перехода или операции.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, INVALID_STATUS)
	From    model.Status
	To      model.Status
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// OperationError — операция недоступна в текущем статусе записи.
type OperationError struct {
	Op       Operation
	Current  model.Status
	Required []model.Status
}

// NewOperationError создаёт ошибку недоступной операции.
func NewOperationError(op Operation, current model.Status) *OperationError {
	return &OperationError{
		Op:       op,
		Current:  current,
		Required: RequiredStatuses(op),
	}
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("операция %s недоступна в статусе %s (требуется: %v)", e.Op, e.Current, e.Required)
}

// ParseStatus преобразует строку в model.Status.
func ParseStatus(s string) (model.Status, error) {
	st := model.Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: uploaded, renamed, converted, conversion_failed", s)
	}
	return st, nil
}
