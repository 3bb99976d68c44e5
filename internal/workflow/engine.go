package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// maxAutoHops ограничивает цепочку автоматических переходов за одну команду.
// Легитимные конфигурации дают один хоп; длинная цепочка — это цикл в правилах.
const maxAutoHops = 5

// systemActorID подставляется в журнал для автоматических ребер.
const systemActorID = "workflow-engine"

// ExportStore описывает, что движку нужно от хранилища.
// Update обязан атомарно записать новый статус, поля отклонения и событие
// журнала, проверив expectedVersion (optimistic lock), и проставить событию
// порядковый Seq. Несовпадение версии — domain.ErrConflict,
// отсутствие записи — domain.ErrNotFound.
type ExportStore interface {
	Create(ctx context.Context, rec *domain.ExportRecord) error
	Get(ctx context.Context, id string) (*domain.ExportRecord, error)
	List(ctx context.Context, status domain.Status, limit int) ([]*domain.ExportRecord, error)
	Update(ctx context.Context, rec *domain.ExportRecord, ev *domain.TransitionEvent, expectedVersion int64) error
	History(ctx context.Context, id string) ([]domain.TransitionEvent, error)
}

// Notifier получает уведомления об уже зафиксированных переходах.
// Контракт: неблокирующий вызов, fire-and-forget. Сбой подписчика
// (Redis, ledger-мост, аудит) никогда не откатывает записанный переход.
type Notifier interface {
	TransitionApplied(rec *domain.ExportRecord, ev *domain.TransitionEvent)
}

// Engine — единственный компонент, которому разрешено менять статус партии.
// Пишет через ExportStore, легальность ребер спрашивает у Gate/Table,
// историю ведет append-only.
type Engine struct {
	store     ExportStore
	reg       *Registry
	table     *Table
	gate      *Gate
	locks     *keyedMutex
	observers []Notifier
	metrics   *Metrics
	logger    *zap.Logger
}

// NewEngine собирает движок. Паникует нельзя — но и стартовать с битым
// набором правил нельзя, поэтому Validate здесь, а не на первом запросе.
func NewEngine(store ExportStore, reg *Registry, table *Table, metrics *Metrics, logger *zap.Logger, observers ...Notifier) (*Engine, error) {
	if err := table.Validate(reg); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		store:     store,
		reg:       reg,
		table:     table,
		gate:      NewGate(reg, table),
		locks:     newKeyedMutex(),
		observers: observers,
		metrics:   metrics,
		logger:    logger.Named("workflow-engine"),
	}, nil
}

// CreateInput — товарные поля новой партии. Для движка непрозрачны.
type CreateInput struct {
	ExporterID  string  `json:"exporter_id"`
	Commodity   string  `json:"commodity"`
	Grade       string  `json:"grade"`
	QuantityKg  float64 `json:"quantity_kg"`
	ValueUSD    float64 `json:"value_usd"`
	Destination string  `json:"destination"`
}

// CreateExport заводит партию в начальном статусе DRAFT.
// Физического удаления не существует: отмена — это терминальный статус.
func (e *Engine) CreateExport(ctx context.Context, in CreateInput) (*domain.ExportRecord, error) {
	if in.ExporterID == "" || in.Commodity == "" {
		return nil, fmt.Errorf("%w: exporter_id and commodity are required", domain.ErrInvalidArgument)
	}
	if in.QuantityKg <= 0 {
		return nil, fmt.Errorf("%w: quantity_kg must be positive", domain.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	rec := &domain.ExportRecord{
		ID:          uuid.NewString(),
		Status:      domain.StatusDraft,
		Version:     1,
		ExporterID:  in.ExporterID,
		Commodity:   in.Commodity,
		Grade:       in.Grade,
		QuantityKg:  in.QuantityKg,
		ValueUSD:    in.ValueUSD,
		Destination: in.Destination,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.Info("export created",
		zap.String("export_id", rec.ID),
		zap.String("exporter_id", rec.ExporterID),
	)
	return rec, nil
}

// GetExport — read-only доступ к записи.
func (e *Engine) GetExport(ctx context.Context, id string) (*domain.ExportRecord, error) {
	return e.store.Get(ctx, id)
}

// ListExports возвращает очередь партий по статусу (пустой статус — все).
func (e *Engine) ListExports(ctx context.Context, status domain.Status, limit int) ([]*domain.ExportRecord, error) {
	if status != "" {
		if _, err := e.reg.Lookup(status); err != nil {
			return nil, err
		}
	}
	return e.store.List(ctx, status, limit)
}

// ApplyTransition валидирует и применяет переход партии в targetStatus.
//
// Критическая секция строго на один exportID: захват ключевого мьютекса,
// чтение, проверка, атомарная запись (статус + событие + версия), выход.
// Никаких внешних вызовов внутри секции — подписчики уведомляются после.
func (e *Engine) ApplyTransition(ctx context.Context, exportID string, target domain.Status, role domain.Role, actorID, reason string) (*domain.ExportRecord, error) {
	role = NormalizeRole(role)
	start := time.Now()

	unlock := e.locks.Lock(exportID)
	rec, kind, err := e.applyLocked(ctx, exportID, target, role, actorID, reason)
	unlock()

	if err != nil {
		e.countDenied(err)
		return nil, err
	}

	e.metrics.TransitionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	return rec, nil
}

// Resubmit — обертка над ApplyTransition для повторной подачи после отклонения.
// Партия обязана находиться в статусе отклонения; цель берется из
// сконфигурированного resubmission-ребра.
func (e *Engine) Resubmit(ctx context.Context, exportID string, role domain.Role, actorID string) (*domain.ExportRecord, error) {
	role = NormalizeRole(role)
	start := time.Now()

	unlock := e.locks.Lock(exportID)
	rec, kind, err := e.resubmitLocked(ctx, exportID, role, actorID)
	unlock()

	if err != nil {
		e.countDenied(err)
		return nil, err
	}

	e.metrics.TransitionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	return rec, nil
}

func (e *Engine) resubmitLocked(ctx context.Context, exportID string, role domain.Role, actorID string) (*domain.ExportRecord, Kind, error) {
	cur, err := e.store.Get(ctx, exportID)
	if err != nil {
		return nil, "", err
	}
	def, err := e.reg.Lookup(cur.Status)
	if err != nil {
		return nil, "", err
	}
	if !def.IsRejection {
		return nil, "", fmt.Errorf("%w: status %q is not a rejection status", domain.ErrInvalidArgument, cur.Status)
	}

	for _, r := range e.table.RulesFrom(cur.Status) {
		if r.Kind == KindResubmission {
			return e.applyLoaded(ctx, cur, r.To, role, actorID, "")
		}
	}
	// Validate гарантирует ровно одно resubmission-ребро; сюда попадать некуда.
	return nil, "", fmt.Errorf("%w: rejection status %q has no resubmission edge", domain.ErrWorkflowConfiguration, cur.Status)
}

func (e *Engine) applyLocked(ctx context.Context, exportID string, target domain.Status, role domain.Role, actorID, reason string) (*domain.ExportRecord, Kind, error) {
	cur, err := e.store.Get(ctx, exportID)
	if err != nil {
		return nil, "", err
	}
	return e.applyLoaded(ctx, cur, target, role, actorID, reason)
}

func (e *Engine) applyLoaded(ctx context.Context, cur *domain.ExportRecord, target domain.Status, role domain.Role, actorID, reason string) (*domain.ExportRecord, Kind, error) {
	// Gate сам отличит чужую роль (пустой набор) от битой конфигурации (ошибка)
	actions, err := e.gate.AvailableActions(cur.Status, role)
	if err != nil {
		return nil, "", err
	}

	var rule *TransitionRule
	for _, a := range actions {
		if a.TargetStatus != target {
			continue
		}
		for _, r := range e.table.RulesFrom(cur.Status) {
			if r.To == target && r.RequiredRole == role {
				rr := r
				rule = &rr
				break
			}
		}
	}
	if rule == nil {
		return nil, "", fmt.Errorf("%w: %q -> %q as %q", domain.ErrForbidden, cur.Status, target, role)
	}

	if rule.Kind == KindRejection && strings.TrimSpace(reason) == "" {
		return nil, "", fmt.Errorf("%w: rejection requires a reason", domain.ErrInvalidArgument)
	}

	updated, err := e.commit(ctx, cur, *rule, role, actorID, reason)
	if err != nil {
		return nil, "", err
	}

	// Прогон мгновенных pass-through маркеров под ролью system.
	// Ограничен maxAutoHops: длинная цепочка — дефект конфигурации.
	hops := 0
	for {
		auto := e.readyAutoRule(updated)
		if auto == nil {
			break
		}
		hops++
		if hops > maxAutoHops {
			return nil, "", fmt.Errorf("%w: automatic transition chain exceeds %d hops at %q",
				domain.ErrWorkflowConfiguration, maxAutoHops, updated.Status)
		}
		updated, err = e.commit(ctx, updated, *auto, domain.RoleSystem, systemActorID, "")
		if err != nil {
			return nil, "", err
		}
	}

	return updated, rule.Kind, nil
}

// readyAutoRule находит автоматическое ребро текущего статуса с выполненным
// предусловием. nil-предусловие трактуется как «всегда готово».
func (e *Engine) readyAutoRule(rec *domain.ExportRecord) *TransitionRule {
	for _, r := range e.table.RulesFrom(rec.Status) {
		if r.Kind != KindAutomatic {
			continue
		}
		if r.Precondition != nil && !r.Precondition(rec) {
			continue
		}
		rr := r
		return &rr
	}
	return nil
}

// commit атомарно фиксирует один переход: мутирует копию записи,
// формирует событие журнала и отдает хранилищу под проверку версии.
func (e *Engine) commit(ctx context.Context, cur *domain.ExportRecord, rule TransitionRule, role domain.Role, actorID, reason string) (*domain.ExportRecord, error) {
	now := time.Now().UTC()

	next := cur.Clone()
	next.Status = rule.To
	next.UpdatedAt = now

	ev := &domain.TransitionEvent{
		ID:         uuid.NewString(),
		ExportID:   cur.ID,
		FromStatus: cur.Status,
		ToStatus:   rule.To,
		ActorRole:  role,
		ActorID:    actorID,
		OccurredAt: now,
	}
	if reason != "" {
		ev.Reason = &reason
	}

	switch rule.Kind {
	case KindRejection:
		next.RejectionReason = &reason
		next.RejectedBy = &actorID
		next.RejectedAt = &now
	case KindResubmission:
		// Поля отклонения живут дальше только в истории
		next.RejectionReason = nil
		next.RejectedBy = nil
		next.RejectedAt = nil
	}

	if err := e.store.Update(ctx, next, ev, cur.Version); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			e.metrics.ConflictsTotal.Inc()
		}
		return nil, err
	}
	next.Version = cur.Version + 1

	e.metrics.TransitionsTotal.WithLabelValues(string(rule.From), string(rule.To), string(rule.Kind)).Inc()
	e.logger.Info("transition applied",
		zap.String("export_id", cur.ID),
		zap.String("from", string(rule.From)),
		zap.String("to", string(rule.To)),
		zap.String("kind", string(rule.Kind)),
		zap.String("actor_role", string(role)),
	)

	// Подписчики (Redis, аудит, ledger-мост) работают после фиксации
	// и по контракту не блокируют. Их сбои переход не откатывают.
	for _, o := range e.observers {
		o.TransitionApplied(next, ev)
	}
	return next, nil
}

// AvailableActionsFor — read-only комбинация текущего статуса и Gate.
// UI рисует по ней кнопки, но командный путь все равно перепроверяет сам.
func (e *Engine) AvailableActionsFor(ctx context.Context, exportID string, role domain.Role) ([]Action, error) {
	rec, err := e.store.Get(ctx, exportID)
	if err != nil {
		return nil, err
	}
	return e.gate.AvailableActions(rec.Status, role)
}

// HistoryOf возвращает неизменяемый журнал переходов для аудита.
func (e *Engine) HistoryOf(ctx context.Context, exportID string) ([]domain.TransitionEvent, error) {
	return e.store.History(ctx, exportID)
}

func (e *Engine) countDenied(err error) {
	var reason string
	switch {
	case errors.Is(err, domain.ErrForbidden):
		reason = "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		reason = "invalid_argument"
	case errors.Is(err, domain.ErrConflict):
		reason = "conflict"
	default:
		reason = "config"
	}
	e.metrics.DeniedTotal.WithLabelValues(reason).Inc()
}
