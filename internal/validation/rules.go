package validation

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// fieldRule — правило приведения значения для одного типа поля.
type fieldRule struct {
	// coerce приводит непустое значение к нормализованному виду
	coerce func(v *Validator, f model.TemplateField, raw any) (any, bool)
	// options — применяется ли проверка вариантов
	options bool
}

// rules — таблица правил по типу поля.
var rules = map[model.FieldType]fieldRule{
	model.FieldText:     {coerce: coerceString},
	model.FieldTextarea: {coerce: coerceString},
	model.FieldFile:     {coerce: coerceString},
	model.FieldEmail:    {coerce: coerceEmail},
	model.FieldNumber:   {coerce: coerceNumber},
	model.FieldDate:     {coerce: coerceDate},
	model.FieldSelect:   {coerce: coerceString, options: true},
	model.FieldCheckbox: {coerce: coerceCheckbox, options: true},
}

// dateTimeLayouts — допустимые форматы даты со временем.
// Значения без зоны считаются UTC.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateOnlyLayout = "2006-01-02"

func coerceString(_ *Validator, _ model.TemplateField, raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	return strings.TrimSpace(s), true
}

func coerceEmail(v *Validator, _ model.TemplateField, raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if err := v.fields.Var(s, "required,email"); err != nil {
		return nil, false
	}
	return s, true
}

// coerceNumber приводит значение к int64 (целое) или float64.
// Принимает числа JSON, json.Number и строки. Целое вне диапазона int64
// сохраняется исходным текстом как json.Number.
func coerceNumber(_ *Validator, _ model.TemplateField, raw any) (any, bool) {
	switch t := raw.(type) {
	case float64:
		return normalizeFloat(t)
	case float32:
		return normalizeFloat(float64(t))
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		return coerceNumberText(t.String())
	case string:
		return coerceNumberText(t)
	default:
		return nil, false
	}
}

func coerceNumberText(s string) (any, bool) {
	s = strings.TrimSpace(s)
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, true
	}
	if errors.Is(err, strconv.ErrRange) {
		return json.Number(s), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return normalizeFloat(f)
}

func normalizeFloat(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), true
	}
	return f, true
}

// numberText — введённый текст числа, к которому применяется шаблон проверки.
func numberText(raw any) (string, bool) {
	switch t := raw.(type) {
	case json.Number:
		return strings.TrimSpace(t.String()), true
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// coerceDate приводит дату к YYYY-MM-DD, дату со временем — к RFC3339 в UTC.
func coerceDate(_ *Validator, _ model.TemplateField, raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)

	if d, err := time.Parse(dateOnlyLayout, s); err == nil {
		return d.Format(dateOnlyLayout), true
	}
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC().Format(time.RFC3339), true
		}
	}
	return nil, false
}

// coerceCheckbox: с вариантами — список выбранных строк,
// без вариантов — одиночный флаг bool.
func coerceCheckbox(_ *Validator, f model.TemplateField, raw any) (any, bool) {
	if len(f.Options) == 0 {
		return parseFlag(raw)
	}

	switch t := raw.(type) {
	case string:
		return []string{strings.TrimSpace(t)}, true
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = strings.TrimSpace(s)
		}
		return out, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, true
	default:
		return nil, false
	}
}

func parseFlag(raw any) (any, bool) {
	switch t := raw.(type) {
	case bool:
		return t, true
	case float64:
		if t == 0 || t == 1 {
			return t == 1, true
		}
	case json.Number:
		switch t.String() {
		case "0":
			return false, true
		case "1":
			return true, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "on", "yes":
			return true, true
		case "0", "false", "off", "no":
			return false, true
		}
	}
	return nil, false
}
