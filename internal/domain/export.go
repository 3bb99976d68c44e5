package domain

import (
	"time"
)

// Status — текущее положение экспортной партии в жизненном цикле.
// Полный перечень допустимых значений живет в workflow.Registry.
type Status string

// Role — роль действующего лица (организации), инициирующего переход.
type Role string

// RoleSystem — служебная роль для автоматических переходов.
// Никогда не сопоставляется с живым пользователем.
const RoleSystem Role = "system"

// Statuses жизненного цикла экспортной партии.
// Словарь взят из гранулярной модели процесса: каждая организация
// (ECX, ECTA, банки, таможня, перевозчик) владеет своим под-этапом.
const (
	StatusDraft   Status = "DRAFT"
	StatusPending Status = "PENDING"

	StatusECXPending  Status = "ECX_PENDING"
	StatusECXVerified Status = "ECX_VERIFIED"
	StatusECXRejected Status = "ECX_REJECTED"

	StatusECTALicensePending  Status = "ECTA_LICENSE_PENDING"
	StatusECTALicenseApproved Status = "ECTA_LICENSE_APPROVED"
	StatusECTALicenseRejected Status = "ECTA_LICENSE_REJECTED"

	StatusECTAQualityPending  Status = "ECTA_QUALITY_PENDING"
	StatusECTAQualityApproved Status = "ECTA_QUALITY_APPROVED"
	StatusECTAQualityRejected Status = "ECTA_QUALITY_REJECTED"

	StatusECTAOriginPending  Status = "ECTA_ORIGIN_PENDING"
	StatusECTAOriginApproved Status = "ECTA_ORIGIN_APPROVED"
	StatusECTAOriginRejected Status = "ECTA_ORIGIN_REJECTED"

	StatusECTAContractPending  Status = "ECTA_CONTRACT_PENDING"
	StatusECTAContractApproved Status = "ECTA_CONTRACT_APPROVED"
	StatusECTAContractRejected Status = "ECTA_CONTRACT_REJECTED"

	StatusBankDocumentPending  Status = "BANK_DOCUMENT_PENDING"
	StatusBankDocumentVerified Status = "BANK_DOCUMENT_VERIFIED"
	StatusBankDocumentRejected Status = "BANK_DOCUMENT_REJECTED"

	StatusFXApplicationPending Status = "FX_APPLICATION_PENDING"
	StatusFXApproved           Status = "FX_APPROVED"
	StatusFXRejected           Status = "FX_REJECTED"

	StatusCustomsPending  Status = "CUSTOMS_PENDING"
	StatusCustomsCleared  Status = "CUSTOMS_CLEARED"
	StatusCustomsRejected Status = "CUSTOMS_REJECTED"

	StatusShipmentPending   Status = "SHIPMENT_PENDING"
	StatusShipmentScheduled Status = "SHIPMENT_SCHEDULED"
	StatusShipped           Status = "SHIPPED"
	StatusShipmentRejected  Status = "SHIPMENT_REJECTED"
	StatusArrived           Status = "ARRIVED"

	StatusImportCustomsPending  Status = "IMPORT_CUSTOMS_PENDING"
	StatusImportCustomsCleared  Status = "IMPORT_CUSTOMS_CLEARED"
	StatusImportCustomsRejected Status = "IMPORT_CUSTOMS_REJECTED"

	StatusDelivered       Status = "DELIVERED"
	StatusPaymentPending  Status = "PAYMENT_PENDING"
	StatusPaymentReceived Status = "PAYMENT_RECEIVED"
	StatusFXRepatriated   Status = "FX_REPATRIATED"

	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Роли организаций коридора экспорта.
const (
	RoleExporter       Role = "exporter"
	RoleECX            Role = "ecx"
	RoleECTA           Role = "ecta"
	RoleInspector      Role = "inspector"
	RoleCommercialBank Role = "commercial-bank"
	RoleNationalBank   Role = "national-bank"
	RoleCustoms        Role = "customs"
	RoleShipper        Role = "shipper"
)

// ExportRecord — экспортная партия, субъект workflow.
// Движок смотрит только на Status и Version; товарные поля для него непрозрачны
// и отдаются дашбордам как есть.
type ExportRecord struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	// Version — счетчик оптимистичной блокировки. Каждый успешный переход
	// инкрементирует его; запись с устаревшей версией не обновляется.
	Version int64 `json:"version"`

	// Товарные данные (непрозрачный payload)
	ExporterID  string  `json:"exporter_id"`
	Commodity   string  `json:"commodity"`
	Grade       string  `json:"grade,omitempty"`
	QuantityKg  float64 `json:"quantity_kg"`
	ValueUSD    float64 `json:"value_usd"`
	Destination string  `json:"destination"`

	// Заполнены только пока партия находится в статусе отклонения.
	// При успешной повторной подаче очищаются (история их сохраняет).
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	RejectedBy      *string    `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransitionEvent — неизменяемая запись журнала переходов.
// Принадлежит ровно одной партии, наружу не шарится.
type TransitionEvent struct {
	ID       string `json:"id"`
	ExportID string `json:"export_id"`

	// Seq — порядковый номер внутри журнала партии, с единицы.
	Seq int `json:"seq"`

	FromStatus Status  `json:"from_status"`
	ToStatus   Status  `json:"to_status"`
	ActorRole  Role    `json:"actor_role"`
	ActorID    string  `json:"actor_id"`
	Reason     *string `json:"reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Clone возвращает глубокую копию записи. Движок мутирует только копию
// и отдает ее хранилищу; вызывающий никогда не видит полузаписанное состояние.
func (r *ExportRecord) Clone() *ExportRecord {
	cp := *r
	if r.RejectionReason != nil {
		v := *r.RejectionReason
		cp.RejectionReason = &v
	}
	if r.RejectedBy != nil {
		v := *r.RejectedBy
		cp.RejectedBy = &v
	}
	if r.RejectedAt != nil {
		v := *r.RejectedAt
		cp.RejectedAt = &v
	}
	return &cp
}
