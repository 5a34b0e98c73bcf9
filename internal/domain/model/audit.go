package model

import "time"

// Модули и действия журнала аудита, которые пишет движок заявок.
const (
	AuditModuleRequests = "Requests"

	AuditActionCreate       = "Create"
	AuditActionStatusChange = "Status Change"
	AuditActionDelete       = "Delete"

	AuditTableRequests = "requests"
)

// ClientContext — сведения о клиенте, выполнившем действие.
type ClientContext struct {
	IP        string
	UserAgent string
}

// AuditEntry — запись журнала аудита.
// Хранится в таблице audit_logs, только вставка.
type AuditEntry struct {
	ID int64
	// UserID — инициатор (nil — системное действие)
	UserID   *string
	Username *string
	Module   string
	Action   string
	// Description — описание (опционально)
	Description   *string
	AffectedTable *string
	AffectedID    *string
	// Changes — структурированные изменения, хранятся как есть
	Changes   any
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
}
