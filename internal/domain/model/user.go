// Пакет model — доменные модели Service Desk.
package model

import "time"

// Actor — субъект, выполняющий операцию над заявками.
// Передаётся явно в каждую операцию жизненного цикла.
type Actor struct {
	// ID — sub из JWT
	ID       string
	Username string
	// Role — эффективная роль (admin, user); пусто для Service Account
	Role string
	// ServiceAccount — субъект аутентифицирован через Client Credentials
	ServiceAccount bool
	Scopes         []string
	Client         ClientContext
}

// IsAdmin проверяет, обладает ли субъект ролью администратора.
func (a Actor) IsAdmin() bool {
	return a.Role == "admin"
}

// RoleOverride — локальное дополнение роли пользователя.
// Хранится в таблице role_overrides.
type RoleOverride struct {
	// ID — UUID записи
	ID string
	// UserID — идентификатор пользователя в IdP (sub)
	UserID string
	// Username — кэшированное имя пользователя
	Username string
	// AdditionalRole — дополнительная роль (admin, user)
	AdditionalRole string
	// CreatedBy — кто установил override
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
