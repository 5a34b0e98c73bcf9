// Пакет lifecycle — конечный автомат статусов заявки.
//
// Жизненный цикл:
//   - pending → in_progress | cancelled
//   - in_progress → resolved | cancelled
//   - resolved, cancelled — конечные статусы, переходы запрещены
//
// Переход в тот же статус запрещён. Автомат не хранит состояние:
// сервис проверяет переход по прочитанному статусу и применяет его
// условным UPDATE с ожидаемым статусом.
package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[model.RequestStatus]map[model.RequestStatus]bool{
	model.StatusPending:    {model.StatusInProgress: true, model.StatusCancelled: true},
	model.StatusInProgress: {model.StatusResolved: true, model.StatusCancelled: true},
	model.StatusResolved:   {},
	model.StatusCancelled:  {},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to model.RequestStatus) bool {
	return validTransitions[from][to]
}

// Check возвращает *TransitionError, если переход from → to недопустим.
// В ошибке перечислены статусы, в которые заявку можно перевести из from.
func Check(from, to model.RequestStatus) error {
	if to.IsValid() && CanTransition(from, to) {
		return nil
	}
	return NewTransitionError(from, to)
}

// NewTransitionError описывает отклонённый переход from → to
// с допустимыми из from статусами.
func NewTransitionError(from, to model.RequestStatus) *TransitionError {
	e := &TransitionError{From: from, To: to, Allowed: AllowedTargets(from)}
	switch {
	case !to.IsValid():
		e.Message = fmt.Sprintf("недопустимый целевой статус: %q", to)
	case IsTerminal(from):
		e.Message = fmt.Sprintf("статус %s конечный, переходы запрещены", from)
	default:
		e.Message = fmt.Sprintf("переход %s → %s недопустим, допустимо: %s", from, to, joinStatuses(e.Allowed))
	}
	return e
}

func joinStatuses(statuses []model.RequestStatus) string {
	parts := make([]string, len(statuses))
	for i, st := range statuses {
		parts[i] = string(st)
	}
	return strings.Join(parts, ", ")
}

// IsTerminal проверяет, является ли статус конечным.
func IsTerminal(s model.RequestStatus) bool {
	t, ok := validTransitions[s]
	return ok && len(t) == 0
}

// AllowedTargets возвращает допустимые целевые статусы в стабильном порядке.
func AllowedTargets(from model.RequestStatus) []model.RequestStatus {
	targets := validTransitions[from]
	result := make([]model.RequestStatus, 0, len(targets))
	for st := range targets {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	From model.RequestStatus
	To   model.RequestStatus
	// Allowed — статусы, допустимые из From; пусто для конечного статуса
	Allowed []model.RequestStatus
	Message string
}

func (e *TransitionError) Error() string {
	return "INVALID_TRANSITION: " + e.Message
}
