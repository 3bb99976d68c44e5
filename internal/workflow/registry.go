package workflow

import (
	"fmt"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// Stage — упорядоченная фаза экспортного конвейера. Объединяет один или
// несколько статусов, закрепленных за одной организацией.
type Stage struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Order int    `json:"order"` // 0 зарезервирован за отменой
	Org   string `json:"org"`
}

// StatusDefinition — статическая конфигурация одного статуса.
type StatusDefinition struct {
	Status      domain.Status `json:"status"`
	Stage       Stage         `json:"stage"`
	IsRejection bool          `json:"is_rejection"`
	IsTerminal  bool          `json:"is_terminal"`

	// ProgressWeight — кумулятивный ранг статуса вдоль прямого пути конвейера.
	// Для статусов отклонения — ранг pending-статуса той же фазы:
	// отклонение это пауза внутри фазы, а не потеря прогресса.
	ProgressWeight int `json:"progress_weight"`
}

// Registry — единственный авторитетный перечень статусов.
// Собирается один раз на старте процесса и дальше только читается,
// поэтому безопасен для конкурентного доступа без блокировок.
type Registry struct {
	defs   map[domain.Status]StatusDefinition
	stages []Stage
}

// Фазы конвейера в порядке прохождения.
var (
	stageCancellation  = Stage{Key: "cancellation", Name: "Cancellation", Order: 0, Org: "System"}
	stageCreation      = Stage{Key: "creation", Name: "Export Creation", Order: 1, Org: "Portal"}
	stageECX           = Stage{Key: "ecx_verification", Name: "ECX Verification", Order: 2, Org: "ECX"}
	stageECTALicense   = Stage{Key: "ecta_license", Name: "ECTA License", Order: 3, Org: "ECTA"}
	stageECTAQuality   = Stage{Key: "ecta_quality", Name: "ECTA Quality", Order: 4, Org: "ECTA"}
	stageECTAOrigin    = Stage{Key: "ecta_origin", Name: "ECTA Origin", Order: 5, Org: "ECTA"}
	stageECTAContract  = Stage{Key: "ecta_contract", Name: "ECTA Contract", Order: 6, Org: "ECTA"}
	stageBanking       = Stage{Key: "banking", Name: "Bank Documents", Order: 7, Org: "Commercial Bank"}
	stageFXApproval    = Stage{Key: "fx_approval", Name: "FX Approval", Order: 8, Org: "NBE"}
	stageExportCustoms = Stage{Key: "export_customs", Name: "Export Customs", Order: 9, Org: "Customs"}
	stageShipping      = Stage{Key: "shipping", Name: "Shipping", Order: 10, Org: "Shipping Line"}
	stageImportCustoms = Stage{Key: "import_customs", Name: "Import Customs", Order: 11, Org: "Customs"}
	stageDelivery      = Stage{Key: "delivery", Name: "Delivery", Order: 12, Org: "Shipping Line"}
	stagePayment       = Stage{Key: "payment", Name: "Payment", Order: 13, Org: "Commercial Bank"}
	stageRepatriation  = Stage{Key: "fx_repatriation", Name: "FX Repatriation", Order: 14, Org: "NBE"}
	stageCompletion    = Stage{Key: "completion", Name: "Completed", Order: 15, Org: "System"}
)

// NewRegistry строит реестр из фиксированной таблицы.
// Таблица не редактируется в рантайме: правка словаря — это деплой, не запрос.
func NewRegistry() *Registry {
	defs := []StatusDefinition{
		{Status: domain.StatusDraft, Stage: stageCreation, ProgressWeight: 1},
		{Status: domain.StatusPending, Stage: stageCreation, ProgressWeight: 2},

		{Status: domain.StatusECXPending, Stage: stageECX, ProgressWeight: 3},
		{Status: domain.StatusECXVerified, Stage: stageECX, ProgressWeight: 4},
		{Status: domain.StatusECXRejected, Stage: stageECX, IsRejection: true, ProgressWeight: 3},

		{Status: domain.StatusECTALicensePending, Stage: stageECTALicense, ProgressWeight: 5},
		{Status: domain.StatusECTALicenseApproved, Stage: stageECTALicense, ProgressWeight: 6},
		{Status: domain.StatusECTALicenseRejected, Stage: stageECTALicense, IsRejection: true, ProgressWeight: 5},

		{Status: domain.StatusECTAQualityPending, Stage: stageECTAQuality, ProgressWeight: 7},
		{Status: domain.StatusECTAQualityApproved, Stage: stageECTAQuality, ProgressWeight: 8},
		{Status: domain.StatusECTAQualityRejected, Stage: stageECTAQuality, IsRejection: true, ProgressWeight: 7},

		{Status: domain.StatusECTAOriginPending, Stage: stageECTAOrigin, ProgressWeight: 9},
		{Status: domain.StatusECTAOriginApproved, Stage: stageECTAOrigin, ProgressWeight: 10},
		{Status: domain.StatusECTAOriginRejected, Stage: stageECTAOrigin, IsRejection: true, ProgressWeight: 9},

		{Status: domain.StatusECTAContractPending, Stage: stageECTAContract, ProgressWeight: 11},
		{Status: domain.StatusECTAContractApproved, Stage: stageECTAContract, ProgressWeight: 12},
		{Status: domain.StatusECTAContractRejected, Stage: stageECTAContract, IsRejection: true, ProgressWeight: 11},

		{Status: domain.StatusBankDocumentPending, Stage: stageBanking, ProgressWeight: 13},
		{Status: domain.StatusBankDocumentVerified, Stage: stageBanking, ProgressWeight: 14},
		{Status: domain.StatusBankDocumentRejected, Stage: stageBanking, IsRejection: true, ProgressWeight: 13},

		{Status: domain.StatusFXApplicationPending, Stage: stageFXApproval, ProgressWeight: 15},
		{Status: domain.StatusFXApproved, Stage: stageFXApproval, ProgressWeight: 16},
		{Status: domain.StatusFXRejected, Stage: stageFXApproval, IsRejection: true, ProgressWeight: 15},

		{Status: domain.StatusCustomsPending, Stage: stageExportCustoms, ProgressWeight: 17},
		{Status: domain.StatusCustomsCleared, Stage: stageExportCustoms, ProgressWeight: 18},
		{Status: domain.StatusCustomsRejected, Stage: stageExportCustoms, IsRejection: true, ProgressWeight: 17},

		{Status: domain.StatusShipmentPending, Stage: stageShipping, ProgressWeight: 19},
		{Status: domain.StatusShipmentScheduled, Stage: stageShipping, ProgressWeight: 20},
		{Status: domain.StatusShipped, Stage: stageShipping, ProgressWeight: 21},
		{Status: domain.StatusArrived, Stage: stageShipping, ProgressWeight: 22},
		{Status: domain.StatusShipmentRejected, Stage: stageShipping, IsRejection: true, ProgressWeight: 19},

		{Status: domain.StatusImportCustomsPending, Stage: stageImportCustoms, ProgressWeight: 23},
		{Status: domain.StatusImportCustomsCleared, Stage: stageImportCustoms, ProgressWeight: 24},
		{Status: domain.StatusImportCustomsRejected, Stage: stageImportCustoms, IsRejection: true, ProgressWeight: 23},

		{Status: domain.StatusDelivered, Stage: stageDelivery, ProgressWeight: 25},
		{Status: domain.StatusPaymentPending, Stage: stagePayment, ProgressWeight: 26},
		{Status: domain.StatusPaymentReceived, Stage: stagePayment, ProgressWeight: 27},
		{Status: domain.StatusFXRepatriated, Stage: stageRepatriation, ProgressWeight: 28},

		{Status: domain.StatusCompleted, Stage: stageCompletion, IsTerminal: true, ProgressWeight: 29},
		{Status: domain.StatusCancelled, Stage: stageCancellation, IsTerminal: true, ProgressWeight: 0},
	}

	m := make(map[domain.Status]StatusDefinition, len(defs))
	for _, d := range defs {
		m[d.Status] = d
	}

	return &Registry{
		defs: m,
		stages: []Stage{
			stageCreation, stageECX, stageECTALicense, stageECTAQuality,
			stageECTAOrigin, stageECTAContract, stageBanking, stageFXApproval,
			stageExportCustoms, stageShipping, stageImportCustoms,
			stageDelivery, stagePayment, stageRepatriation, stageCompletion,
		},
	}
}

// Lookup возвращает определение статуса.
// Незарегистрированный статус — это всегда дефект данных, жесткий отказ.
func (r *Registry) Lookup(s domain.Status) (StatusDefinition, error) {
	def, ok := r.defs[s]
	if !ok {
		return StatusDefinition{}, fmt.Errorf("%w: %q", domain.ErrUnknownStatus, s)
	}
	return def, nil
}

// StagesInOrder возвращает фазы конвейера по порядку прохождения.
// Cancellation сюда не входит: это выход из конвейера, а не его фаза.
func (r *Registry) StagesInOrder() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// Statuses возвращает все зарегистрированные статусы (для валидации правил).
func (r *Registry) Statuses() []domain.Status {
	out := make([]domain.Status, 0, len(r.defs))
	for s := range r.defs {
		out = append(out, s)
	}
	return out
}

// maxProgressWeight — вес терминального COMPLETED, знаменатель прогресса.
func (r *Registry) maxProgressWeight() int {
	max := 0
	for _, d := range r.defs {
		if d.ProgressWeight > max {
			max = d.ProgressWeight
		}
	}
	return max
}
