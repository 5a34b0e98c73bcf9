package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSchema — шаблон формы некорректен (дубликат поля, неизвестный тип,
// некомпилируемый шаблон проверки). Ошибка инфраструктуры, а не данных заявителя.
var ErrInvalidSchema = errors.New("некорректная схема шаблона")

// Коды ошибок полей.
const (
	CodeRequired        = "required"
	CodeInvalidType     = "invalid_type"
	CodeInvalidOption   = "invalid_option"
	CodePatternMismatch = "pattern_mismatch"
	CodeNotInSchema     = "not_in_schema"
)

// FieldError — ошибка одного поля формы.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error — результат неуспешной проверки: все ошибки полей в порядке проверки.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Code
	}
	return fmt.Sprintf("ошибка проверки формы (%s)", strings.Join(parts, ", "))
}

// NewFieldError создаёт *Error с одной ошибкой поля.
// Используется вызывающим кодом для ошибок вне схемы (service_id, template_id).
func NewFieldError(field, code, message string) *Error {
	return &Error{Fields: []FieldError{{Field: field, Code: code, Message: message}}}
}
