package lifecycle

import (
	"errors"
	"testing"

	"github.com/bigkaa/wavpipe/internal/domain/model"
)

// TestTransitions_Forward проверяет штатные переходы вперёд.
func TestTransitions_Forward(t *testing.T) {
	tests := []struct {
		from model.Status
		to   model.Status
	}{
		{model.StatusUploaded, model.StatusRenamed},
		{model.StatusUploaded, model.StatusConverted},
		{model.StatusUploaded, model.StatusConversionFailed},
		{model.StatusRenamed, model.StatusConverted},
		{model.StatusRenamed, model.StatusConversionFailed},
		{model.StatusConversionFailed, model.StatusConverted},
		{model.StatusConversionFailed, model.StatusConversionFailed},
	}

	for _, tt := range tests {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("%s → %s должен быть допустим", tt.from, tt.to)
		}
		if err := Transition(tt.from, tt.to); err != nil {
			t.Errorf("%s → %s: неожиданная ошибка: %v", tt.from, tt.to, err)
		}
	}
}

// TestTransitions_NeverBackToUploaded проверяет, что из любого статуса
// нельзя вернуться в uploaded.
func TestTransitions_NeverBackToUploaded(t *testing.T) {
	for _, from := range model.AllStatuses {
		if CanTransition(from, model.StatusUploaded) {
			t.Errorf("%s → uploaded не должен быть допустим", from)
		}

		err := Transition(from, model.StatusUploaded)
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("%s → uploaded: ожидалась TransitionError, получена %T", from, err)
		}
		if te.Code != CodeInvalidTransition {
			t.Errorf("ожидался код %s, получен %q", CodeInvalidTransition, te.Code)
		}
	}
}

// TestTransitions_ConvertedFinal проверяет, что converted — конечный статус.
func TestTransitions_ConvertedFinal(t *testing.T) {
	for _, to := range model.AllStatuses {
		if CanTransition(model.StatusConverted, to) {
			t.Errorf("converted → %s не должен быть допустим", to)
		}
	}
}

// TestTransitions_RenameOnlyFromUploaded проверяет, что renamed достижим только из uploaded.
func TestTransitions_RenameOnlyFromUploaded(t *testing.T) {
	for _, from := range []model.Status{model.StatusRenamed, model.StatusConverted, model.StatusConversionFailed} {
		if CanTransition(from, model.StatusRenamed) {
			t.Errorf("%s → renamed не должен быть допустим", from)
		}
	}
}

// TestTransition_InvalidStatus проверяет обработку неизвестных статусов.
func TestTransition_InvalidStatus(t *testing.T) {
	err := Transition(model.Status("bogus"), model.StatusRenamed)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("ожидалась TransitionError, получена %T", err)
	}
	if te.Code != CodeInvalidStatus {
		t.Errorf("ожидался код %s, получен %q", CodeInvalidStatus, te.Code)
	}
}

// TestAllowedOperations проверяет матрицу операций для каждого статуса.
func TestAllowedOperations(t *testing.T) {
	tests := []struct {
		status   model.Status
		allowed  []Operation
		disallow []Operation
	}{
		{
			status:   model.StatusUploaded,
			allowed:  []Operation{OpRename, OpConvert, OpDelete},
			disallow: []Operation{OpDownload},
		},
		{
			status:   model.StatusRenamed,
			allowed:  []Operation{OpConvert, OpDelete},
			disallow: []Operation{OpRename, OpDownload},
		},
		{
			status:   model.StatusConversionFailed,
			allowed:  []Operation{OpConvert, OpDelete},
			disallow: []Operation{OpRename, OpDownload},
		},
		{
			status:   model.StatusConverted,
			allowed:  []Operation{OpDownload, OpDelete},
			disallow: []Operation{OpRename, OpConvert},
		},
	}

	for _, tt := range tests {
		for _, op := range tt.allowed {
			if !CanPerform(tt.status, op) {
				t.Errorf("статус %s: операция %s должна быть допустима", tt.status, op)
			}
		}
		for _, op := range tt.disallow {
			if CanPerform(tt.status, op) {
				t.Errorf("статус %s: операция %s не должна быть допустима", tt.status, op)
			}
		}
	}
}

// TestRequiredStatuses проверяет список статусов для операции.
func TestRequiredStatuses(t *testing.T) {
	got := RequiredStatuses(OpConvert)
	want := []model.Status{model.StatusUploaded, model.StatusRenamed, model.StatusConversionFailed}
	if len(got) != len(want) {
		t.Fatalf("ожидалось %v, получено %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("позиция %d: ожидалось %s, получено %s", i, want[i], got[i])
		}
	}

	if len(RequiredStatuses(OpDelete)) != len(model.AllStatuses) {
		t.Error("delete должен быть допустим во всех статусах")
	}
}

// TestOperationError проверяет содержимое ошибки операции.
func TestOperationError(t *testing.T) {
	err := NewOperationError(OpRename, model.StatusConverted)
	if err.Current != model.StatusConverted {
		t.Errorf("Current: ожидалось converted, получено %s", err.Current)
	}
	if len(err.Required) != 1 || err.Required[0] != model.StatusUploaded {
		t.Errorf("Required: ожидалось [uploaded], получено %v", err.Required)
	}
	if err.Error() == "" {
		t.Error("сообщение ошибки не должно быть пустым")
	}
}

// TestParseStatus проверяет парсинг строки в Status.
func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    model.Status
		wantErr bool
	}{
		{"uploaded", model.StatusUploaded, false},
		{"renamed", model.StatusRenamed, false},
		{"converted", model.StatusConverted, false},
		{"conversion_failed", model.StatusConversionFailed, false},
		{"Uploaded", "", true}, // регистр важен
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStatus(%q): ожидалась ошибка", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q): неожиданная ошибка: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q): ожидалось %q, получено %q", tt.input, tt.want, got)
		}
	}
}
