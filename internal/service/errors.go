// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден или не виден субъекту.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — у субъекта нет прав на операцию.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrConflict — не удалось получить уникальный код заявки.
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrInvalidRole — неизвестная роль.
	ErrInvalidRole = errors.New("недопустимая роль")
)
