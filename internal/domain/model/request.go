package model

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus — статус заявки.
type RequestStatus string

const (
	// StatusPending — начальный статус (Pendiente)
	StatusPending RequestStatus = "pending"
	// StatusInProgress — заявка в работе (En Proceso)
	StatusInProgress RequestStatus = "in_progress"
	// StatusResolved — заявка решена (Resuelta), конечный статус
	StatusResolved RequestStatus = "resolved"
	// StatusCancelled — заявка отменена (Cancelada), конечный статус
	StatusCancelled RequestStatus = "cancelled"
)

// statusLabels — отображаемые названия статусов в предметной области.
var statusLabels = map[RequestStatus]string{
	StatusPending:    "Pendiente",
	StatusInProgress: "En Proceso",
	StatusResolved:   "Resuelta",
	StatusCancelled:  "Cancelada",
}

// Label возвращает отображаемое название статуса.
func (s RequestStatus) Label() string {
	return statusLabels[s]
}

// IsValid проверяет, является ли статус допустимым.
func (s RequestStatus) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseRequestStatus принимает код статуса (in_progress) или его
// отображаемое название (En Proceso) без учёта регистра.
func ParseRequestStatus(s string) (RequestStatus, error) {
	v := strings.TrimSpace(s)
	if st := RequestStatus(strings.ToLower(v)); st.IsValid() {
		return st, nil
	}
	for st, label := range statusLabels {
		if strings.EqualFold(label, v) {
			return st, nil
		}
	}
	return "", fmt.Errorf("недопустимый статус: %q, допустимые: pending, in_progress, resolved, cancelled", s)
}

// SLASnapshot — неизменяемая копия SLA на момент создания заявки.
type SLASnapshot struct {
	Name                 string `json:"name"`
	FirstResponseMinutes int    `json:"first_response_minutes"`
	ResolutionMinutes    int    `json:"resolution_minutes"`
}

// ServiceSnapshot — неизменяемая копия данных услуги на момент создания заявки.
type ServiceSnapshot struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Priority ServicePriority `json:"priority"`
}

// ServiceRef — текущие данные услуги (LEFT JOIN при чтении).
// nil, если услуга удалена из каталога.
type ServiceRef struct {
	ID   string
	Code string
	Name string
	Slug string
}

// Requester — автор заявки.
type Requester struct {
	ID       string
	Username string
}

// Request — заявка на услугу каталога.
// Хранится в таблице requests.
// SLASnapshot и ServiceSnapshot записываются один раз при создании и больше не меняются.
type Request struct {
	ID        string
	Code      string
	ServiceID string
	// Service — текущее состояние услуги, только для чтения
	Service *ServiceRef
	Requester
	TemplateID      *string
	TemplateVersion *int
	// FormPayload — нормализованные данные формы
	FormPayload     map[string]any
	Status          RequestStatus
	SubmittedAt     time.Time
	RedirectedAt    *time.Time
	SLASnapshot     *SLASnapshot
	ServiceSnapshot ServiceSnapshot
	IdempotencyKey  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
