// Пакет snapshot — фиксация данных услуги и SLA на момент создания заявки.
// Снимки копируются по значению и не ссылаются на строки каталога:
// последующие правки услуги или SLA не меняют уже созданные заявки.
package snapshot

import "github.com/bigkaa/servicedesk/internal/domain/model"

// Build строит снимки услуги и SLA.
// sla == nil (услуга без SLA) даёт nil-снимок SLA.
func Build(svc *model.Service, sla *model.SLA) (model.ServiceSnapshot, *model.SLASnapshot) {
	serviceSnap := model.ServiceSnapshot{
		Code:     svc.Code,
		Name:     svc.Name,
		Priority: svc.Priority,
	}
	if sla == nil {
		return serviceSnap, nil
	}
	return serviceSnap, &model.SLASnapshot{
		Name:                 sla.Name,
		FirstResponseMinutes: sla.FirstResponseMinutes,
		ResolutionMinutes:    sla.ResolutionMinutes,
	}
}
