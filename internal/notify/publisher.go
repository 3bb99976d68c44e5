package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
	"github.com/xela07ax/coffee-export-workflow/internal/infra"
)

// TransitionMessage — полезная нагрузка широковещательного события.
// Подписчики (дашборды, ledger-мост) получают новый статус и событие журнала.
type TransitionMessage struct {
	ExportID   string        `json:"export_id"`
	Status     domain.Status `json:"status"`
	FromStatus domain.Status `json:"from_status"`
	ActorRole  domain.Role   `json:"actor_role"`
	Seq        int           `json:"seq"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Publisher транслирует зафиксированные переходы в Redis Pub/Sub.
// Реализует workflow.Notifier: вызов неблокирующий, доставка best-effort.
// Потерянное сообщение не страшно — истина всегда в Postgres, подписчик
// может перечитать состояние по REST.
type Publisher struct {
	rdb    *redis.Client
	safe   *reliableSender
	logger *zap.Logger
}

func NewPublisher(rdb *redis.Client, logger *zap.Logger) *Publisher {
	p := &Publisher{
		rdb:    rdb,
		logger: logger.Named("notify"),
	}
	p.safe = newReliableSender(p.send)
	return p
}

func (p *Publisher) TransitionApplied(rec *domain.ExportRecord, ev *domain.TransitionEvent) {
	msg := TransitionMessage{
		ExportID:   rec.ID,
		Status:     rec.Status,
		FromStatus: ev.FromStatus,
		ActorRole:  ev.ActorRole,
		Seq:        ev.Seq,
		OccurredAt: ev.OccurredAt,
	}

	// Fire-and-forget: командный путь движка не ждет Redis
	go func() {
		if err := p.safe.Send(msg); err != nil {
			p.logger.Warn("transition broadcast failed",
				zap.String("export_id", msg.ExportID),
				zap.String("status", string(msg.Status)),
				zap.Error(err),
			)
		}
	}()
}

func (p *Publisher) send(ctx context.Context, msg TransitionMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	// Общий канал + персональный канал партии (для трекера конкретного экспорта)
	if err := p.rdb.Publish(ctx, infra.RedisChanTransitions, payload).Err(); err != nil {
		return err
	}
	return p.rdb.Publish(ctx, infra.GetExportChannel(msg.ExportID), payload).Err()
}
