package audit

/*
Файл trail.go реализует компонент Trail — асинхронный сборщик audit trail
по решениям экспортного конвейера.

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят в буферизированный канал, задержки
  записи в БД не влияют на время ответа командного пути движка.
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке сервиса буфер вычитывается
  полностью (Final Flush) через закрытие канала и sync.WaitGroup.
- Сбой записи аудита никогда не влияет на уже зафиксированный переход —
  это требование транзакционной границы движка.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// StorageInterface определяет, куда физически будут сохраняться записи
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// BufferGauge — хук для метрики заполненности буфера (backpressure).
type BufferGauge interface {
	Set(v float64)
}

type Trail struct {
	ch     chan Event
	repo   StorageInterface
	logger *zap.Logger
	gauge  BufferGauge
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Log после остановки
	isClosed int32
}

func NewTrail(repo StorageInterface, logger *zap.Logger, bufferSize, batchSize int, flushInterval time.Duration) *Trail {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Trail{
		ch:            make(chan Event, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit-trail")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// SetGauge подключает метрику заполненности буфера (опционально).
func (t *Trail) SetGauge(g BufferGauge) { t.gauge = g }

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	atomic.StoreInt32(&t.isClosed, 1)

	// Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

// TransitionApplied реализует workflow.Notifier: каждый зафиксированный
// переход зеркалится в audit trail.
func (t *Trail) TransitionApplied(rec *domain.ExportRecord, ev *domain.TransitionEvent) {
	e := Event{
		ID:         ev.ID,
		ExportID:   ev.ExportID,
		Seq:        ev.Seq,
		FromStatus: string(ev.FromStatus),
		ToStatus:   string(ev.ToStatus),
		ActorRole:  string(ev.ActorRole),
		ActorID:    ev.ActorID,
		Timestamp:  ev.OccurredAt,
	}
	if ev.Reason != nil {
		e.Reason = *ev.Reason
	}
	t.Log(e)
}

func (t *Trail) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит хотя бы в лог,
	// командный путь не блокируется никогда
	select {
	case t.ch <- event:
		if t.gauge != nil {
			t.gauge.Set(float64(len(t.ch)))
		}
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("export_id", event.ExportID),
			zap.String("to_status", event.ToStatus),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к моменту Final Flush может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				flush() // Final Flush: канал закрыт, дописываем остатки
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
