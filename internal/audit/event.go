package audit

import "time"

// Event — аналитическая копия решения по партии для audit trail.
// Канонический журнал переходов живет в transition_events и пишется
// транзакционно; эта запись — асинхронная, для отчетности и разбора
// инцидентов ("кто и почему отклонил").
type Event struct {
	ID       string `json:"id"`        // UUID исходного события перехода
	ExportID string `json:"export_id"` // Какая партия
	Seq      int    `json:"seq"`       // Номер в журнале партии

	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorRole  string `json:"actor_role"` // Кто решал
	ActorID    string `json:"actor_id"`
	Reason     string `json:"reason"` // Обоснование (пусто для одобрений)

	Timestamp time.Time `json:"timestamp"`
}
