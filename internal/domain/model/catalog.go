package model

import "time"

// ServicePriority — приоритет услуги каталога.
type ServicePriority string

const (
	PriorityLow      ServicePriority = "low"
	PriorityMedium   ServicePriority = "medium"
	PriorityHigh     ServicePriority = "high"
	PriorityCritical ServicePriority = "critical"
)

// ServiceStatus — статус публикации услуги.
type ServiceStatus string

const (
	ServiceStatusDraft     ServiceStatus = "draft"
	ServiceStatusPublished ServiceStatus = "published"
	ServiceStatusInactive  ServiceStatus = "inactive"
)

// Service — опубликованная услуга каталога.
// Хранится в таблице services, ведётся администрированием каталога.
// Для движка заявок — только источник чтения.
type Service struct {
	// ID — UUID услуги
	ID string
	// Code — короткий код услуги (уникальный)
	Code string
	// Name — название
	Name string
	// Slug — URL-идентификатор
	Slug string
	// Description — описание (опционально)
	Description *string
	// CategoryID — категория каталога
	CategoryID string
	// SubcategoryID — подкатегория (опционально)
	SubcategoryID *string
	// SLAID — привязанная политика SLA (опционально)
	SLAID *string
	// Priority — приоритет (low, medium, high, critical)
	Priority ServicePriority
	// Status — статус публикации (draft, published, inactive)
	Status ServiceStatus
	// Keywords — ключевые слова для поиска
	Keywords []string
	// Metadata — произвольные метаданные
	Metadata map[string]any
	// PublishedAt — время публикации (nil для черновиков)
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPublished — принимает ли услуга новые заявки.
func (s *Service) IsPublished() bool {
	return s.Status == ServiceStatusPublished
}

// SLA — политика уровня обслуживания.
// Хранится в таблице slas.
type SLA struct {
	ID          string
	Name        string
	Description *string
	// FirstResponseMinutes — целевое время первого ответа в минутах
	FirstResponseMinutes int
	// ResolutionMinutes — целевое время решения в минутах
	ResolutionMinutes int
	// PauseConditions — условия приостановки отсчёта (свободный текст)
	PauseConditions *string
	// Active — политика действует
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
