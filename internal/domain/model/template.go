package model

import "time"

// FieldType — тип поля формы шаблона.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
)

// IsValid проверяет, является ли тип поля допустимым.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldText, FieldTextarea, FieldEmail, FieldNumber,
		FieldDate, FieldSelect, FieldCheckbox, FieldFile:
		return true
	default:
		return false
	}
}

// Template — версионируемая схема формы заявки, привязанная к услуге.
// Хранится в таблицах templates + template_fields.
type Template struct {
	ID        string
	ServiceID string
	Name      string
	Active    bool
	// Version — номер версии схемы, увеличивается при изменении полей
	Version int
	// Fields — поля в порядке Order
	Fields    []TemplateField
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TemplateField — описание одного поля формы.
// FieldName уникален в пределах шаблона.
type TemplateField struct {
	ID        string
	FieldName string
	Label     string
	Type      FieldType
	// Options — допустимые значения для select/checkbox
	Options  []string
	Required bool
	// ValidationPattern — регулярное выражение (полное совпадение)
	ValidationPattern *string
	// ValidationMessage — сообщение при несовпадении с шаблоном
	ValidationMessage *string
	Placeholder       *string
	// Order — порядок отображения и проверки
	Order int
}
