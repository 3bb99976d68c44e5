package workflow

import (
	"fmt"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// Kind классифицирует ребро графа переходов.
type Kind string

const (
	KindApproval     Kind = "approval"
	KindRejection    Kind = "rejection"
	KindResubmission Kind = "resubmission"
	KindAutomatic    Kind = "automatic"
)

// Precondition — предикат готовности автоматического ребра.
// nil означает «всегда готово» (чистый pass-through маркер).
type Precondition func(rec *domain.ExportRecord) bool

// TransitionRule — одно легальное ребро status -> status.
type TransitionRule struct {
	From         domain.Status
	To           domain.Status
	RequiredRole domain.Role // RoleSystem для автоматических ребер
	Kind         Kind
	Precondition Precondition // только для Kind == KindAutomatic
}

// Table держит граф легальных ребер и отвечает на запросы о допустимости.
// Как и Registry — неизменяемая конфигурация процесса.
type Table struct {
	byFrom map[domain.Status][]TransitionRule
	roles  map[domain.Role]struct{}
}

// NewTable собирает граф переходов экспортного коридора.
//
// Устройство графа:
//   - решение органа: *_PENDING -> *_APPROVED | *_REJECTED (approval/rejection);
//   - маркеры *_APPROVED внутри регуляторной цепочки — мгновенные pass-through,
//     система сама проталкивает партию в очередь следующего органа;
//   - FX_APPROVED и CUSTOMS_CLEARED не проталкиваются: следующий шаг
//     (подача таможенной декларации, бронирование судна) делает человек;
//   - каждый *_REJECTED имеет ровно одно ребро повторной подачи обратно
//     в pending своей же фазы и ребро отмены в CANCELLED.
func NewTable() *Table {
	rules := []TransitionRule{
		// Creation
		{From: domain.StatusDraft, To: domain.StatusPending, RequiredRole: domain.RoleExporter, Kind: KindApproval},
		{From: domain.StatusDraft, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},
		{From: domain.StatusPending, To: domain.StatusECXPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},

		// ECX Verification
		{From: domain.StatusECXPending, To: domain.StatusECXVerified, RequiredRole: domain.RoleECX, Kind: KindApproval},
		{From: domain.StatusECXPending, To: domain.StatusECXRejected, RequiredRole: domain.RoleECX, Kind: KindRejection},
		{From: domain.StatusECXVerified, To: domain.StatusECTALicensePending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		{From: domain.StatusECXRejected, To: domain.StatusECXPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusECXRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},

		// ECTA License
		{From: domain.StatusECTALicensePending, To: domain.StatusECTALicenseApproved, RequiredRole: domain.RoleECTA, Kind: KindApproval},
		{From: domain.StatusECTALicensePending, To: domain.StatusECTALicenseRejected, RequiredRole: domain.RoleECTA, Kind: KindRejection},
		{From: domain.StatusECTALicenseApproved, To: domain.StatusECTAQualityPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		{From: domain.StatusECTALicenseRejected, To: domain.StatusECTALicensePending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusECTALicenseRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},

		// ECTA Quality (решение выносит инспектор-дегустатор, не клерк ECTA)
		{From: domain.StatusECTAQualityPending, To: domain.StatusECTAQualityApproved, RequiredRole: domain.RoleInspector, Kind: KindApproval},
		{From: domain.StatusECTAQualityPending, To: domain.StatusECTAQualityRejected, RequiredRole: domain.RoleInspector, Kind: KindRejection},
		{From: domain.StatusECTAQualityApproved, To: domain.StatusECTAOriginPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		{From: domain.StatusECTAQualityRejected, To: domain.StatusECTAQualityPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusECTAQualityRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},

		// ECTA Origin
		{From: domain.StatusECTAOriginPending, To: domain.StatusECTAOriginApproved, RequiredRole: domain.RoleECTA, Kind: KindApproval},
		{From: domain.StatusECTAOriginPending, To: domain.StatusECTAOriginRejected, RequiredRole: domain.RoleECTA, Kind: KindRejection},
		{From: domain.StatusECTAOriginApproved, To: domain.StatusECTAContractPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		{From: domain.StatusECTAOriginRejected, To: domain.StatusECTAOriginPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusECTAOriginRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},

		// ECTA Contract
		{From: domain.StatusECTAContractPending, To: domain.StatusECTAContractApproved, RequiredRole: domain.RoleECTA, Kind: KindApproval},
		{From: domain.StatusECTAContractPending, To: domain.StatusECTAContractRejected, RequiredRole: domain.RoleECTA, Kind: KindRejection},
		{From: domain.StatusECTAContractApproved, To: domain.StatusBankDocumentPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		{From: domain.StatusECTAContractRejected, To: domain.StatusECTAContractPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusECTAContractRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},

		// Banking
		{From: domain.StatusBankDocumentPending, To: domain.StatusBankDocumentVerified, RequiredRole: domain.RoleCommercialBank, Kind: KindApproval},
		{From: domain.StatusBankDocumentPending, To: domain.StatusBankDocumentRejected, RequiredRole: domain.RoleCommercialBank, Kind: KindRejection},
		{From: domain.StatusBankDocumentVerified, To: domain.StatusFXApplicationPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		{From: domain.StatusBankDocumentRejected, To: domain.StatusBankDocumentPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusBankDocumentRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},

		// FX Approval (NBE)
		{From: domain.StatusFXApplicationPending, To: domain.StatusFXApproved, RequiredRole: domain.RoleNationalBank, Kind: KindApproval},
		{From: domain.StatusFXApplicationPending, To: domain.StatusFXRejected, RequiredRole: domain.RoleNationalBank, Kind: KindRejection},
		{From: domain.StatusFXRejected, To: domain.StatusFXApplicationPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusFXRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},
		// Дальше партия стоит в FX_APPROVED, пока экспортер не подаст декларацию
		{From: domain.StatusFXApproved, To: domain.StatusCustomsPending, RequiredRole: domain.RoleExporter, Kind: KindApproval},

		// Export Customs
		{From: domain.StatusCustomsPending, To: domain.StatusCustomsCleared, RequiredRole: domain.RoleCustoms, Kind: KindApproval},
		{From: domain.StatusCustomsPending, To: domain.StatusCustomsRejected, RequiredRole: domain.RoleCustoms, Kind: KindRejection},
		{From: domain.StatusCustomsRejected, To: domain.StatusCustomsPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusCustomsRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},
		// Бронирование судна — действие экспортера после выпуска таможней
		{From: domain.StatusCustomsCleared, To: domain.StatusShipmentPending, RequiredRole: domain.RoleExporter, Kind: KindApproval},

		// Shipping
		{From: domain.StatusShipmentPending, To: domain.StatusShipmentScheduled, RequiredRole: domain.RoleShipper, Kind: KindApproval},
		{From: domain.StatusShipmentPending, To: domain.StatusShipmentRejected, RequiredRole: domain.RoleShipper, Kind: KindRejection},
		{From: domain.StatusShipmentScheduled, To: domain.StatusShipped, RequiredRole: domain.RoleShipper, Kind: KindApproval},
		{From: domain.StatusShipped, To: domain.StatusArrived, RequiredRole: domain.RoleShipper, Kind: KindApproval},
		{From: domain.StatusShipmentRejected, To: domain.StatusShipmentPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusShipmentRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},
		{From: domain.StatusArrived, To: domain.StatusImportCustomsPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},

		// Import Customs
		{From: domain.StatusImportCustomsPending, To: domain.StatusImportCustomsCleared, RequiredRole: domain.RoleCustoms, Kind: KindApproval},
		{From: domain.StatusImportCustomsPending, To: domain.StatusImportCustomsRejected, RequiredRole: domain.RoleCustoms, Kind: KindRejection},
		{From: domain.StatusImportCustomsCleared, To: domain.StatusDelivered, RequiredRole: domain.RoleShipper, Kind: KindApproval},
		{From: domain.StatusImportCustomsRejected, To: domain.StatusImportCustomsPending, RequiredRole: domain.RoleExporter, Kind: KindResubmission},
		{From: domain.StatusImportCustomsRejected, To: domain.StatusCancelled, RequiredRole: domain.RoleExporter, Kind: KindRejection},

		// Delivery -> Payment -> Repatriation -> Completed
		{From: domain.StatusDelivered, To: domain.StatusPaymentPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		{From: domain.StatusPaymentPending, To: domain.StatusPaymentReceived, RequiredRole: domain.RoleCommercialBank, Kind: KindApproval},
		{From: domain.StatusPaymentReceived, To: domain.StatusFXRepatriated, RequiredRole: domain.RoleNationalBank, Kind: KindApproval},
		{From: domain.StatusFXRepatriated, To: domain.StatusCompleted, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
	}

	byFrom := make(map[domain.Status][]TransitionRule)
	for _, r := range rules {
		byFrom[r.From] = append(byFrom[r.From], r)
	}

	roles := map[domain.Role]struct{}{
		domain.RoleExporter:       {},
		domain.RoleECX:            {},
		domain.RoleECTA:           {},
		domain.RoleInspector:      {},
		domain.RoleCommercialBank: {},
		domain.RoleNationalBank:   {},
		domain.RoleCustoms:        {},
		domain.RoleShipper:        {},
		domain.RoleSystem:         {},
	}

	return &Table{byFrom: byFrom, roles: roles}
}

// RulesFrom возвращает все исходящие ребра статуса, без фильтра по роли.
func (t *Table) RulesFrom(from domain.Status) []TransitionRule {
	rules := t.byFrom[from]
	out := make([]TransitionRule, len(rules))
	copy(out, rules)
	return out
}

// IsLegal отвечает, допустим ли переход from -> to для данной роли.
func (t *Table) IsLegal(from, to domain.Status, role domain.Role) bool {
	for _, r := range t.byFrom[from] {
		if r.To != to {
			continue
		}
		if r.RequiredRole == role {
			return true
		}
	}
	return false
}

// KnownRole сообщает, зарегистрирована ли роль в конфигурации.
func (t *Table) KnownRole(role domain.Role) bool {
	_, ok := t.roles[role]
	return ok
}

// Validate прогоняет весь набор правил против реестра. Вызывается один раз
// на старте процесса; любая ошибка фатальна — с противоречивым графом
// движок команд не принимает.
//
// Проверки:
//  1. каждый from/to разрешается в Registry, каждая роль зарегистрирована;
//  2. терминальные статусы не имеют исходящих ребер;
//  3. граф без ребер отклонения/повторной подачи ацикличен — прямое движение
//     по фазам строго упорядочено;
//  4. у каждого статуса отклонения ровно одно ребро повторной подачи,
//     ведущее в нетерминальный статус.
func (t *Table) Validate(reg *Registry) error {
	for from, rules := range t.byFrom {
		fromDef, err := reg.Lookup(from)
		if err != nil {
			return fmt.Errorf("%w: rule references %v", domain.ErrWorkflowConfiguration, err)
		}
		if fromDef.IsTerminal && len(rules) > 0 {
			return fmt.Errorf("%w: terminal status %q has outgoing edges", domain.ErrWorkflowConfiguration, from)
		}
		for _, r := range rules {
			if _, err := reg.Lookup(r.To); err != nil {
				return fmt.Errorf("%w: rule %q->%q references %v", domain.ErrWorkflowConfiguration, r.From, r.To, err)
			}
			if !t.KnownRole(r.RequiredRole) {
				return fmt.Errorf("%w: rule %q->%q requires unknown role %q", domain.ErrWorkflowConfiguration, r.From, r.To, r.RequiredRole)
			}
			if r.Kind == KindAutomatic && r.RequiredRole != domain.RoleSystem {
				return fmt.Errorf("%w: automatic rule %q->%q must use system role", domain.ErrWorkflowConfiguration, r.From, r.To)
			}
		}
	}

	if err := t.checkForwardAcyclic(reg); err != nil {
		return err
	}
	return t.checkResubmissionEdges(reg)
}

// checkForwardAcyclic — DFS по ребрам approval/automatic. Цикл в прямом
// графе означал бы, что партия может «прогрессировать» бесконечно.
func (t *Table) checkForwardAcyclic(reg *Registry) error {
	const (
		white = 0 // не посещен
		gray  = 1 // в текущем пути
		black = 2 // обработан
	)
	color := make(map[domain.Status]int)

	var visit func(s domain.Status) error
	visit = func(s domain.Status) error {
		color[s] = gray
		for _, r := range t.byFrom[s] {
			if r.Kind == KindRejection || r.Kind == KindResubmission {
				continue
			}
			switch color[r.To] {
			case gray:
				return fmt.Errorf("%w: forward cycle through %q->%q", domain.ErrWorkflowConfiguration, r.From, r.To)
			case white:
				if err := visit(r.To); err != nil {
					return err
				}
			}
		}
		color[s] = black
		return nil
	}

	for _, s := range reg.Statuses() {
		if color[s] == white {
			if err := visit(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Table) checkResubmissionEdges(reg *Registry) error {
	for _, s := range reg.Statuses() {
		def, _ := reg.Lookup(s)
		if !def.IsRejection {
			continue
		}
		count := 0
		for _, r := range t.byFrom[s] {
			if r.Kind != KindResubmission {
				continue
			}
			count++
			toDef, err := reg.Lookup(r.To)
			if err != nil {
				return err
			}
			if toDef.IsTerminal {
				return fmt.Errorf("%w: resubmission from %q leads to terminal %q", domain.ErrWorkflowConfiguration, s, r.To)
			}
		}
		if count != 1 {
			return fmt.Errorf("%w: rejection status %q has %d resubmission edges, want 1", domain.ErrWorkflowConfiguration, s, count)
		}
	}
	return nil
}
