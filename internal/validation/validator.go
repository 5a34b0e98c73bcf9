// Пакет validation — проверка данных формы заявки по схеме шаблона.
//
// Validate — чистая функция от (поля шаблона, данные формы): без побочных
// эффектов, результат детерминирован. Кэш шаблонов только ускоряет компиляцию.
//
// Порядок правил для каждого поля: required → тип → варианты → шаблон.
// На поле сообщается одна ошибка (первое нарушенное правило).
// Ключи, отсутствующие в схеме, отклоняются с кодом not_in_schema.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// DefaultCacheSize — размер кэша шаблонов по умолчанию.
const DefaultCacheSize = 256

// Validator проверяет и нормализует данные формы.
// Безопасен для конкурентного использования.
type Validator struct {
	patterns *patternCache
	fields   *validator.Validate
}

// New создаёт Validator с кэшем скомпилированных шаблонов указанного размера.
func New(cacheSize int) *Validator {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Validator{
		patterns: newPatternCache(cacheSize),
		fields:   validator.New(),
	}
}

// Validate проверяет payload по полям шаблона.
//
// Возвращает:
//   - нормализованные данные (те же ключи, значения приведены к типам поля)
//   - *Error со списком ошибок полей
//   - ошибку, обёртывающую ErrInvalidSchema, если некорректен сам шаблон
func (v *Validator) Validate(fields []model.TemplateField, payload map[string]any) (map[string]any, error) {
	ordered, err := orderFields(fields)
	if err != nil {
		return nil, err
	}

	normalized := make(map[string]any, len(payload))
	var fieldErrs []FieldError

	for _, f := range ordered {
		raw, present := payload[f.FieldName]
		value, fe, err := v.checkField(f, raw)
		if err != nil {
			return nil, err
		}
		if fe != nil {
			fieldErrs = append(fieldErrs, *fe)
			continue
		}
		if present {
			normalized[f.FieldName] = value
		}
	}

	for _, key := range unknownKeys(ordered, payload) {
		fieldErrs = append(fieldErrs, FieldError{
			Field:   key,
			Code:    CodeNotInSchema,
			Message: fmt.Sprintf("Поле %q не предусмотрено шаблоном", key),
		})
	}

	if len(fieldErrs) > 0 {
		return nil, &Error{Fields: fieldErrs}
	}
	return normalized, nil
}

// checkField применяет правила к одному полю.
// Пустое необязательное поле нормализуется в nil.
func (v *Validator) checkField(f model.TemplateField, raw any) (any, *FieldError, error) {
	if isEmpty(raw) {
		if f.Required {
			return nil, &FieldError{
				Field:   f.FieldName,
				Code:    CodeRequired,
				Message: fmt.Sprintf("Поле %q обязательно", label(f)),
			}, nil
		}
		return nil, nil, nil
	}

	rule := rules[f.Type]
	value, ok := rule.coerce(v, f, raw)
	if !ok {
		return nil, &FieldError{
			Field:   f.FieldName,
			Code:    CodeInvalidType,
			Message: fmt.Sprintf("Поле %q: ожидается значение типа %s", label(f), f.Type),
		}, nil
	}

	if rule.options && len(f.Options) > 0 && !inOptions(value, f.Options) {
		return nil, &FieldError{
			Field:   f.FieldName,
			Code:    CodeInvalidOption,
			Message: fmt.Sprintf("Поле %q: недопустимое значение, допустимые: %s", label(f), strings.Join(f.Options, ", ")),
		}, nil
	}

	if f.ValidationPattern != nil && *f.ValidationPattern != "" {
		re, err := v.patterns.get(*f.ValidationPattern)
		if err != nil {
			return nil, nil, fmt.Errorf("поле %s: %w", f.FieldName, err)
		}
		for _, s := range patternSubjects(raw, value) {
			if !re.MatchString(s) {
				msg := fmt.Sprintf("Поле %q не соответствует требуемому формату", label(f))
				if f.ValidationMessage != nil && *f.ValidationMessage != "" {
					msg = *f.ValidationMessage
				}
				return nil, &FieldError{Field: f.FieldName, Code: CodePatternMismatch, Message: msg}, nil
			}
		}
	}

	return value, nil, nil
}

// orderFields проверяет схему и возвращает поля в порядке Order, затем FieldName.
func orderFields(fields []model.TemplateField) ([]model.TemplateField, error) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.FieldName == "" {
			return nil, fmt.Errorf("%w: поле без имени", ErrInvalidSchema)
		}
		if seen[f.FieldName] {
			return nil, fmt.Errorf("%w: дубликат поля %q", ErrInvalidSchema, f.FieldName)
		}
		if _, ok := rules[f.Type]; !ok {
			return nil, fmt.Errorf("%w: поле %q: неизвестный тип %q", ErrInvalidSchema, f.FieldName, f.Type)
		}
		seen[f.FieldName] = true
	}

	ordered := make([]model.TemplateField, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].FieldName < ordered[j].FieldName
	})
	return ordered, nil
}

// unknownKeys возвращает отсортированные ключи payload, которых нет в схеме.
func unknownKeys(fields []model.TemplateField, payload map[string]any) []string {
	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.FieldName] = true
	}
	var keys []string
	for k := range payload {
		if !declared[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// isEmpty — отсутствует, null, пустая строка из пробелов или пустой список.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

func inOptions(value any, options []string) bool {
	allowed := make(map[string]bool, len(options))
	for _, o := range options {
		allowed[o] = true
	}
	switch t := value.(type) {
	case string:
		return allowed[t]
	case []string:
		for _, s := range t {
			if !allowed[s] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// patternSubjects — строки, к которым применяется шаблон проверки.
// Для чисел это введённый текст, а не приведённое значение: "1.50" и "007"
// проверяются как есть.
func patternSubjects(raw, value any) []string {
	switch t := value.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case int64, float64, json.Number:
		if text, ok := numberText(raw); ok {
			return []string{text}
		}
		return []string{fmt.Sprint(t)}
	default:
		return nil
	}
}

func label(f model.TemplateField) string {
	if f.Label != "" {
		return f.Label
	}
	return f.FieldName
}
