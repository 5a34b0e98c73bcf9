// users.go — обработчик PUT /api/v1/users/{user_id}/role-override.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/bigkaa/servicedesk/internal/api/errors"
)

type roleOverrideBody struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type roleOverrideJSON struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	AdditionalRole string    `json:"additional_role"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SetRoleOverride — PUT /api/v1/users/{user_id}/role-override.
// Дополняет роль пользователя из IdP. Доступ: admin.
func (h *APIHandler) SetRoleOverride(w http.ResponseWriter, r *http.Request, userID string) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var body roleOverrideBody
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	ro, err := h.roles.Set(r.Context(), userID, body.Username, body.Role, actor)
	if err != nil {
		h.writeServiceError(w, err, "установка role override")
		return
	}

	writeJSON(w, http.StatusOK, roleOverrideJSON{
		UserID:         ro.UserID,
		Username:       ro.Username,
		AdditionalRole: ro.AdditionalRole,
		CreatedBy:      ro.CreatedBy,
		CreatedAt:      ro.CreatedAt,
		UpdatedAt:      ro.UpdatedAt,
	})
}
