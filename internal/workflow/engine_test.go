package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
	"github.com/xela07ax/coffee-export-workflow/internal/repository/memory"
)

func newTestEngine(t *testing.T, observers ...Notifier) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	eng, err := NewEngine(store, NewRegistry(), NewTable(), nil, zap.NewNop(), observers...)
	require.NoError(t, err)
	return eng, store
}

func createExport(t *testing.T, eng *Engine) *domain.ExportRecord {
	t.Helper()
	rec, err := eng.CreateExport(context.Background(), CreateInput{
		ExporterID: "exp-42",
		Commodity:  "Arabica",
		Grade:      "Grade 1",
		QuantityKg: 18000,
		ValueUSD:   92000,
	})
	require.NoError(t, err)
	return rec
}

// driveTo прогоняет партию по прямому пути до нужного статуса.
func driveTo(t *testing.T, eng *Engine, id string, target domain.Status) *domain.ExportRecord {
	t.Helper()
	steps := []struct {
		role   domain.Role
		target domain.Status
	}{
		{domain.RoleExporter, domain.StatusPending},
		{domain.RoleECX, domain.StatusECXVerified},
		{domain.RoleECTA, domain.StatusECTALicenseApproved},
		{domain.RoleInspector, domain.StatusECTAQualityApproved},
		{domain.RoleECTA, domain.StatusECTAOriginApproved},
		{domain.RoleECTA, domain.StatusECTAContractApproved},
		{domain.RoleCommercialBank, domain.StatusBankDocumentVerified},
		{domain.RoleNationalBank, domain.StatusFXApproved},
		{domain.RoleExporter, domain.StatusCustomsPending},
		{domain.RoleCustoms, domain.StatusCustomsCleared},
		{domain.RoleExporter, domain.StatusShipmentPending},
		{domain.RoleShipper, domain.StatusShipmentScheduled},
		{domain.RoleShipper, domain.StatusShipped},
		{domain.RoleShipper, domain.StatusArrived},
		{domain.RoleCustoms, domain.StatusImportCustomsCleared},
		{domain.RoleShipper, domain.StatusDelivered},
		{domain.RoleCommercialBank, domain.StatusPaymentReceived},
		{domain.RoleNationalBank, domain.StatusFXRepatriated},
	}

	var rec *domain.ExportRecord
	var err error
	for _, st := range steps {
		rec, err = eng.ApplyTransition(context.Background(), id, st.target, st.role, "actor-"+string(st.role), "")
		require.NoError(t, err, "step to %s as %s", st.target, st.role)
		if rec.Status == target {
			return rec
		}
	}
	require.Equal(t, target, rec.Status, "happy path never reached %s", target)
	return rec
}

func TestEngineRejectsBrokenTable(t *testing.T) {
	broken := buildTable([]domain.Role{domain.RoleExporter}, TransitionRule{
		From: domain.StatusCompleted, To: domain.StatusDraft,
		RequiredRole: domain.RoleExporter, Kind: KindApproval,
	})
	_, err := NewEngine(memory.NewStore(), NewRegistry(), broken, nil, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWorkflowConfiguration))
}

func TestEngineCreateExport(t *testing.T) {
	eng, _ := newTestEngine(t)

	rec := createExport(t, eng)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.StatusDraft, rec.Status)
	assert.EqualValues(t, 1, rec.Version)

	_, err := eng.CreateExport(context.Background(), CreateInput{Commodity: "Arabica", QuantityKg: 10})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = eng.CreateExport(context.Background(), CreateInput{ExporterID: "exp-1", Commodity: "Arabica", QuantityKg: -5})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

// Подача заявки: PENDING — мгновенный маркер, система сама проталкивает
// партию в очередь ECX. Оба перехода попадают в историю.
func TestEngineSubmitPassesThroughToECXQueue(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)

	updated, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-42", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusECXPending, updated.Status)
	assert.EqualValues(t, 3, updated.Version) // два зафиксированных перехода

	history, err := eng.HistoryOf(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.StatusDraft, history[0].FromStatus)
	assert.Equal(t, domain.StatusPending, history[0].ToStatus)
	assert.Equal(t, domain.RoleExporter, history[0].ActorRole)
	assert.Equal(t, domain.StatusECXPending, history[1].ToStatus)
	assert.Equal(t, domain.RoleSystem, history[1].ActorRole)
	assert.Equal(t, 1, history[0].Seq)
	assert.Equal(t, 2, history[1].Seq)
}

func TestEngineForbidsWrongRole(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)
	_, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-42", "")
	require.NoError(t, err)

	// Экспортер не может верифицировать сам себя
	_, err = eng.ApplyTransition(context.Background(), rec.ID, domain.StatusECXVerified, domain.RoleExporter, "exp-42", "")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	// Легальная роль, но нелегальная цель
	_, err = eng.ApplyTransition(context.Background(), rec.ID, domain.StatusCompleted, domain.RoleECX, "ecx-1", "")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	// Запись не должна была сдвинуться
	cur, err := eng.GetExport(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusECXPending, cur.Status)
}

func TestEngineRejectionRequiresReason(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)
	_, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-42", "")
	require.NoError(t, err)

	_, err = eng.ApplyTransition(context.Background(), rec.ID, domain.StatusECXRejected, domain.RoleECX, "ecx-1", "   ")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	updated, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusECXRejected, domain.RoleECX, "ecx-1", "lot mismatch")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusECXRejected, updated.Status)
	require.NotNil(t, updated.RejectionReason)
	assert.Equal(t, "lot mismatch", *updated.RejectionReason)
	require.NotNil(t, updated.RejectedBy)
	assert.Equal(t, "ecx-1", *updated.RejectedBy)
	assert.NotNil(t, updated.RejectedAt)
}

// Повторная подача возвращает партию в очередь своей же фазы и чистит поля
// отклонения; причина остается жить в истории.
func TestEngineResubmitAfterRejection(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)
	_, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-42", "")
	require.NoError(t, err)
	_, err = eng.ApplyTransition(context.Background(), rec.ID, domain.StatusECXRejected, domain.RoleECX, "ecx-1", "lot mismatch")
	require.NoError(t, err)

	updated, err := eng.Resubmit(context.Background(), rec.ID, domain.RoleExporter, "exp-42")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusECXPending, updated.Status)
	assert.Nil(t, updated.RejectionReason)
	assert.Nil(t, updated.RejectedBy)
	assert.Nil(t, updated.RejectedAt)

	history, err := eng.HistoryOf(context.Background(), rec.ID)
	require.NoError(t, err)
	var reasons []string
	for _, ev := range history {
		if ev.Reason != nil {
			reasons = append(reasons, *ev.Reason)
		}
	}
	assert.Contains(t, reasons, "lot mismatch")
}

func TestEngineResubmitOnlyFromRejection(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)

	_, err := eng.Resubmit(context.Background(), rec.ID, domain.RoleExporter, "exp-42")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

// После одобрения NBE партия стоит в FX_APPROVED: подача таможенной
// декларации — действие экспортера, система ее не проталкивает.
func TestEngineFXApprovalWaitsForExporter(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)
	driveTo(t, eng, rec.ID, domain.StatusFXApplicationPending)

	// Экспортер не может одобрить собственную валютную заявку
	_, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusFXApproved, domain.RoleExporter, "exp-42", "")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	updated, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusFXApproved, domain.RoleNationalBank, "nbe-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFXApproved, updated.Status)

	updated, err = eng.ApplyTransition(context.Background(), rec.ID, domain.StatusCustomsPending, domain.RoleExporter, "exp-42", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCustomsPending, updated.Status)
}

func TestEngineFullHappyPath(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)

	final := driveTo(t, eng, rec.ID, domain.StatusCompleted)
	assert.Equal(t, domain.StatusCompleted, final.Status)

	// Терминал: действий нет, любые команды отклоняются
	actions, err := eng.AvailableActionsFor(context.Background(), rec.ID, domain.RoleExporter)
	require.NoError(t, err)
	assert.Empty(t, actions)

	_, err = eng.ApplyTransition(context.Background(), rec.ID, domain.StatusDraft, domain.RoleExporter, "exp-42", "")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestEngineCancellationIsTerminalAndRequiresReason(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)

	_, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusCancelled, domain.RoleExporter, "exp-42", "")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	updated, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusCancelled, domain.RoleExporter, "exp-42", "buyer withdrew")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, updated.Status)

	_, err = eng.Resubmit(context.Background(), rec.ID, domain.RoleExporter, "exp-42")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestEngineAvailableActionsFor(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)

	actions, err := eng.AvailableActionsFor(context.Background(), rec.ID, domain.RoleExporter)
	require.NoError(t, err)
	assert.Len(t, actions, 2)

	actions, err = eng.AvailableActionsFor(context.Background(), rec.ID, domain.RoleCustoms)
	require.NoError(t, err)
	assert.Empty(t, actions)

	_, err = eng.AvailableActionsFor(context.Background(), "no-such-id", domain.RoleExporter)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEngineNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.ApplyTransition(context.Background(), "ghost", domain.StatusPending, domain.RoleExporter, "exp-42", "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// Две конкурирующие команды над одной партией: побеждает ровно одна.
// Проигравший получает Forbidden (успел прочитать новый статус под локом)
// либо Conflict (гонка версий на другом инстансе).
func TestEngineConcurrentDecisions(t *testing.T) {
	eng, _ := newTestEngine(t)
	rec := createExport(t, eng)
	_, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-42", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	apply := func(i int, target domain.Status, reason string) {
		defer wg.Done()
		_, errs[i] = eng.ApplyTransition(context.Background(), rec.ID, target, domain.RoleECX, "ecx-1", reason)
	}
	wg.Add(2)
	go apply(0, domain.StatusECXVerified, "")
	go apply(1, domain.StatusECXRejected, "moisture above limit")
	wg.Wait()

	var ok, denied int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrConflict):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, denied)
}

// Цепочка автоматических ребер длиннее лимита — дефект конфигурации.
// Валидатор такой граф не пропустит, поэтому собираем движок вручную.
func TestEngineAutoHopLimit(t *testing.T) {
	table := buildTable(
		[]domain.Role{domain.RoleExporter, domain.RoleSystem},
		TransitionRule{From: domain.StatusDraft, To: domain.StatusPending, RequiredRole: domain.RoleExporter, Kind: KindApproval},
		TransitionRule{From: domain.StatusPending, To: domain.StatusECXPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
		TransitionRule{From: domain.StatusECXPending, To: domain.StatusPending, RequiredRole: domain.RoleSystem, Kind: KindAutomatic},
	)
	reg := NewRegistry()
	eng := &Engine{
		store:   memory.NewStore(),
		reg:     reg,
		table:   table,
		gate:    NewGate(reg, table),
		locks:   newKeyedMutex(),
		metrics: NewMetrics(nil),
		logger:  zap.NewNop(),
	}

	rec, err := eng.CreateExport(context.Background(), CreateInput{ExporterID: "exp-1", Commodity: "Arabica", QuantityKg: 100})
	require.NoError(t, err)

	_, err = eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-1", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWorkflowConfiguration))
}

// Предусловие автоматического ребра должно удерживать партию на месте.
func TestEnginePreconditionHoldsAutoHop(t *testing.T) {
	table := buildTable(
		[]domain.Role{domain.RoleExporter, domain.RoleSystem},
		TransitionRule{From: domain.StatusDraft, To: domain.StatusPending, RequiredRole: domain.RoleExporter, Kind: KindApproval},
		TransitionRule{
			From: domain.StatusPending, To: domain.StatusECXPending,
			RequiredRole: domain.RoleSystem, Kind: KindAutomatic,
			Precondition: func(rec *domain.ExportRecord) bool { return rec.ValueUSD > 0 },
		},
	)
	reg := NewRegistry()
	eng := &Engine{
		store:   memory.NewStore(),
		reg:     reg,
		table:   table,
		gate:    NewGate(reg, table),
		locks:   newKeyedMutex(),
		metrics: NewMetrics(nil),
		logger:  zap.NewNop(),
	}

	// Без оценки стоимости — стоим в PENDING
	rec, err := eng.CreateExport(context.Background(), CreateInput{ExporterID: "exp-1", Commodity: "Arabica", QuantityKg: 100})
	require.NoError(t, err)
	updated, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, updated.Status)

	// С оценкой — проталкивается
	rec2, err := eng.CreateExport(context.Background(), CreateInput{ExporterID: "exp-1", Commodity: "Arabica", QuantityKg: 100, ValueUSD: 5000})
	require.NoError(t, err)
	updated, err = eng.ApplyTransition(context.Background(), rec2.ID, domain.StatusPending, domain.RoleExporter, "exp-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusECXPending, updated.Status)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []domain.TransitionEvent
}

func (c *captureNotifier) TransitionApplied(_ *domain.ExportRecord, ev *domain.TransitionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *ev)
}

// Подписчики получают каждый зафиксированный переход, включая автоматические.
func TestEngineNotifiesObserversPerCommit(t *testing.T) {
	capture := &captureNotifier{}
	eng, _ := newTestEngine(t, capture)
	rec := createExport(t, eng)

	_, err := eng.ApplyTransition(context.Background(), rec.ID, domain.StatusPending, domain.RoleExporter, "exp-42", "")
	require.NoError(t, err)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Len(t, capture.events, 2)
	assert.Equal(t, domain.StatusPending, capture.events[0].ToStatus)
	assert.Equal(t, domain.StatusECXPending, capture.events[1].ToStatus)
}
