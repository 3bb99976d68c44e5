package postgres

/*
Файл export_repo.go — Postgres-реализация хранилища экспортных партий.

Схема: одна строка на партию (exports) плюс append-only дочерняя таблица
журнала (transition_events), упорядоченная по seq. Фиксация перехода —
одна транзакция: условный UPDATE по версии + INSERT события. Проверка
версии (optimistic lock) защищает от гонки между инстансами сервиса.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

type ExportRepo struct {
	pool *pgxpool.Pool
}

// NewExportRepo создает репозиторий поверх готового пула.
// Пул собирает и закрывает main: жизненный цикл соединений — не забота репо.
func NewExportRepo(pool *pgxpool.Pool) *ExportRepo {
	return &ExportRepo{pool: pool}
}

const exportColumns = `id, status, version, exporter_id, commodity, grade,
	quantity_kg, value_usd, destination,
	rejection_reason, rejected_by, rejected_at, created_at, updated_at`

func (r *ExportRepo) Create(ctx context.Context, rec *domain.ExportRecord) error {
	query := `INSERT INTO exports (` + exportColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Status, rec.Version, rec.ExporterID, rec.Commodity, rec.Grade,
		rec.QuantityKg, rec.ValueUSD, rec.Destination,
		rec.RejectionReason, rec.RejectedBy, rec.RejectedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create export: %w", err)
	}
	return nil
}

func (r *ExportRepo) Get(ctx context.Context, id string) (*domain.ExportRecord, error) {
	query := `SELECT ` + exportColumns + ` FROM exports WHERE id = $1`
	return r.scanExport(r.pool.QueryRow(ctx, query, id), id)
}

func (r *ExportRepo) List(ctx context.Context, status domain.Status, limit int) ([]*domain.ExportRecord, error) {
	query := `SELECT ` + exportColumns + ` FROM exports`

	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, normalizeLimit(limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query exports: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ExportRecord, 0)
	for rows.Next() {
		rec, err := r.scanExport(rows, "")
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// Update — транзакционная фиксация перехода.
// Условие WHERE version = $n исключает двойное применение: проигравшая
// гонку запись не находит строку и получает ErrConflict.
func (r *ExportRepo) Update(ctx context.Context, rec *domain.ExportRecord, ev *domain.TransitionEvent, expectedVersion int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE exports
		SET status = $1,
		    version = version + 1,
		    rejection_reason = $2,
		    rejected_by = $3,
		    rejected_at = $4,
		    updated_at = $5
		WHERE id = $6 AND version = $7`

	tag, err := tx.Exec(ctx, updateQuery,
		rec.Status, rec.RejectionReason, rec.RejectedBy, rec.RejectedAt,
		rec.UpdatedAt, rec.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update export: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Либо ID неверный, либо (что чаще) параллельный переход успел раньше
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM exports WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: conflict probe failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, rec.ID)
		}
		return fmt.Errorf("%w: export %s stale version %d", domain.ErrConflict, rec.ID, expectedVersion)
	}

	// Порядковый номер события внутри журнала партии
	seqQuery := `SELECT COALESCE(MAX(seq), 0) + 1 FROM transition_events WHERE export_id = $1`
	if err := tx.QueryRow(ctx, seqQuery, rec.ID).Scan(&ev.Seq); err != nil {
		return fmt.Errorf("postgres: failed to compute event seq: %w", err)
	}

	insertQuery := `
		INSERT INTO transition_events (id, export_id, seq, from_status, to_status, actor_role, actor_id, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.Exec(ctx, insertQuery,
		ev.ID, ev.ExportID, ev.Seq, ev.FromStatus, ev.ToStatus,
		ev.ActorRole, ev.ActorID, ev.Reason, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append transition event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit transition: %w", err)
	}
	return nil
}

func (r *ExportRepo) History(ctx context.Context, id string) ([]domain.TransitionEvent, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM exports WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres: failed to check export: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	query := `SELECT id, export_id, seq, from_status, to_status, actor_role, actor_id, reason, occurred_at
	          FROM transition_events WHERE export_id = $1 ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query history: %w", err)
	}
	defer rows.Close()

	events := make([]domain.TransitionEvent, 0)
	for rows.Next() {
		var ev domain.TransitionEvent
		var reason sql.NullString

		err := rows.Scan(&ev.ID, &ev.ExportID, &ev.Seq, &ev.FromStatus, &ev.ToStatus,
			&ev.ActorRole, &ev.ActorID, &reason, &ev.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan event: %w", err)
		}
		if reason.Valid {
			val := reason.String
			ev.Reason = &val
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ExportRepo) scanExport(row rowScanner, id string) (*domain.ExportRecord, error) {
	var rec domain.ExportRecord
	var rejectionReason, rejectedBy sql.NullString
	var rejectedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.Status, &rec.Version, &rec.ExporterID, &rec.Commodity, &rec.Grade,
		&rec.QuantityKg, &rec.ValueUSD, &rec.Destination,
		&rejectionReason, &rejectedBy, &rejectedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("postgres: failed to scan export: %w", err)
	}

	// Маппим NULL значения из БД
	if rejectionReason.Valid {
		val := rejectionReason.String
		rec.RejectionReason = &val
	}
	if rejectedBy.Valid {
		val := rejectedBy.String
		rec.RejectedBy = &val
	}
	if rejectedAt.Valid {
		val := rejectedAt.Time
		rec.RejectedAt = &val
	}
	return &rec, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
