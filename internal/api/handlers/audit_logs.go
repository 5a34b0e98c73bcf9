// audit_logs.go — обработчик POST /api/v1/audit-logs.
// Точка записи аудита для внешних модулей (каталог, SLA, шаблоны).
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/servicedesk/internal/api/errors"
	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/service"
)

type auditLogBody struct {
	Module        string `json:"module"`
	Action        string `json:"action"`
	Description   string `json:"description"`
	AffectedTable string `json:"affected_table"`
	AffectedID    string `json:"affected_id"`
	Changes       any    `json:"changes"`
	// System — системное действие без инициатора
	System bool `json:"system"`
}

type auditEntryJSON struct {
	ID            int64   `json:"id"`
	UserID        *string `json:"user_id"`
	Username      *string `json:"username"`
	Module        string  `json:"module"`
	Action        string  `json:"action"`
	Description   *string `json:"description"`
	AffectedTable *string `json:"affected_table"`
	AffectedID    *string `json:"affected_id"`
	Changes       any     `json:"changes"`
	IPAddress     *string `json:"ip_address"`
	UserAgent     *string `json:"user_agent"`
	CreatedAt     string  `json:"created_at"`
}

func mapAuditEntry(e *model.AuditEntry) auditEntryJSON {
	return auditEntryJSON{
		ID:            e.ID,
		UserID:        e.UserID,
		Username:      e.Username,
		Module:        e.Module,
		Action:        e.Action,
		Description:   e.Description,
		AffectedTable: e.AffectedTable,
		AffectedID:    e.AffectedID,
		Changes:       e.Changes,
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateAuditLog — POST /api/v1/audit-logs.
// Доступ: администратор или Service Account со scope audit:write.
func (h *APIHandler) CreateAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var body auditLogBody
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	entry, err := h.audit.Record(r.Context(), service.AuditInput{
		Module:        body.Module,
		Action:        body.Action,
		Description:   body.Description,
		AffectedTable: body.AffectedTable,
		AffectedID:    body.AffectedID,
		Changes:       body.Changes,
		System:        body.System,
	}, actor)
	if err != nil {
		h.writeServiceError(w, err, "запись аудита")
		return
	}

	writeJSON(w, http.StatusCreated, mapAuditEntry(entry))
}
