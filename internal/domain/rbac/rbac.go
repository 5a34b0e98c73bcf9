// Пакет rbac — определение эффективной роли пользователя Service Desk.
// Роль из групп IdP дополняется локальным override из БД.
// Итоговая роль = max(роль из IdP, override), роль можно только повысить.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
var roleWeight = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// EffectiveRole вычисляет итоговую роль = max(idpRole, roleOverride).
// Если roleOverride == nil, возвращает idpRole.
func EffectiveRole(idpRole string, roleOverride *string) string {
	if roleOverride == nil {
		return idpRole
	}
	return maxRole(idpRole, *roleOverride)
}

func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// MapGroupsToRole определяет роль по группам IdP.
// Членство в одной из adminGroups даёт admin, иначе — user:
// любой аутентифицированный пользователь может подавать заявки.
func MapGroupsToRole(groups []string, adminGroups []string) string {
	adminSet := make(map[string]bool, len(adminGroups))
	for _, g := range adminGroups {
		adminSet[g] = true
	}
	for _, g := range groups {
		if adminSet[g] {
			return RoleAdmin
		}
	}
	return RoleUser
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}
