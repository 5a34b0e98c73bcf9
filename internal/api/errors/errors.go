// Пакет errors — конструкторы стандартных ошибок API Service Desk.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Ошибки валидации полей дополняются массивом fields,
// недопустимый переход статуса — полями current_status и allowed_transitions.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/servicedesk/internal/validation"
)

// Коды ошибок API.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code          string                  `json:"code"`
	Message       string                  `json:"message"`
	Fields        []validation.FieldError `json:"fields,omitempty"`
	CurrentStatus string                  `json:"current_status,omitempty"`
	// AllowedTransitions — статусы, допустимые из current_status
	AllowedTransitions []string `json:"allowed_transitions,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	writeBody(w, statusCode, errorDetail{Code: code, Message: message})
}

func writeBody(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректный запрос (JSON, параметры).
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// FieldErrors — 422 ошибки полей формы, список передаётся как есть.
func FieldErrors(w http.ResponseWriter, fields []validation.FieldError) {
	writeBody(w, http.StatusUnprocessableEntity, errorDetail{
		Code:    CodeValidationError,
		Message: "Данные формы не прошли проверку",
		Fields:  fields,
	})
}

// InvalidTransition — 409 переход статуса недопустим, с текущим статусом заявки
// и статусами, в которые её можно перевести.
func InvalidTransition(w http.ResponseWriter, message, currentStatus string, allowed []string) {
	writeBody(w, http.StatusConflict, errorDetail{
		Code:               CodeInvalidTransition,
		Message:            message,
		CurrentStatus:      currentStatus,
		AllowedTransitions: allowed,
	})
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
