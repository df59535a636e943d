// Пакет naming — чистые функции работы с именами файлов:
// санитизация, правило усечения имени при переименовании и
// приведение клиентского имени к каноническому UTF-8.
package naming

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength — максимальная длина санитизированного имени в символах.
const MaxNameLength = 100

// Fallback — имя, которое возвращается, если от исходного ничего не осталось.
const Fallback = "output"

// illegalChars — символы, недопустимые в именах файлов распространённых ФС.
const illegalChars = `<>:"/\|?*`

// Sanitize приводит произвольную строку к безопасному имени файла:
// недопустимые и управляющие символы заменяются на '_', серии '_'
// схлопываются, '_', '.' и пробелы по краям обрезаются, длина
// ограничивается MaxNameLength символами.
//
// Никогда не возвращает "", "." или "..". Идемпотентна.
func Sanitize(name string) string {
	name = strings.ToValidUTF8(name, "_")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(illegalChars, r) {
			return '_'
		}
		return r
	}, name)

	sanitized = collapseUnderscores(sanitized)
	sanitized = strings.TrimFunc(sanitized, isEdgeChar)

	if isEmptyName(sanitized) {
		return Fallback
	}

	if utf8.RuneCountInString(sanitized) > MaxNameLength {
		runes := []rune(sanitized)
		sanitized = strings.TrimRightFunc(string(runes[:MaxNameLength]), isEdgeChar)
		if isEmptyName(sanitized) {
			return Fallback
		}
	}

	return sanitized
}

// DeriveTargetBaseName возвращает часть базового имени (без расширения)
// до первого дефиса. Если дефиса нет, возвращает вход без изменений —
// вызывающий код трактует это как «переименование не требуется».
//
// "track-001" → "track", "-x" → "" (пустое имя обрабатывает Sanitize).
func DeriveTargetBaseName(originalBaseName string) string {
	before, _, found := strings.Cut(originalBaseName, "-")
	if !found {
		return originalBaseName
	}
	return before
}

// DecodeOriginalName приводит имя файла от клиента к каноническому виду:
// отбрасывает компоненты пути (в том числе Windows-разделители),
// декодирует не-UTF-8 байты как ISO-8859-1 и нормализует в NFC.
func DecodeOriginalName(raw string) string {
	if idx := strings.LastIndexAny(raw, `/\`); idx >= 0 {
		raw = raw[idx+1:]
	}

	if !utf8.ValidString(raw) {
		decoded, err := charmap.ISO8859_1.NewDecoder().String(raw)
		if err == nil {
			raw = decoded
		} else {
			raw = strings.ToValidUTF8(raw, "_")
		}
	}

	return norm.NFC.String(strings.TrimSpace(raw))
}

// SplitExt разделяет имя на базовую часть и расширение (с точкой).
func SplitExt(name string) (base, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// collapseUnderscores заменяет серии '_' одним символом.
func collapseUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for _, r := range s {
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isEdgeChar(r rune) bool {
	return r == '_' || r == '.' || unicode.IsSpace(r)
}

func isEmptyName(s string) bool {
	return s == "" || s == "." || s == ".."
}
