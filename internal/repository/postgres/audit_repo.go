package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/coffee-export-workflow/internal/audit"
)

// AuditRepo — приемник пакетов audit trail (таблица audit_logs).
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	numFields := 9
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		vals = append(vals,
			e.ID, e.ExportID, e.Seq, e.FromStatus, e.ToStatus,
			e.ActorRole, e.ActorID, e.Reason, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_logs (id, export_id, seq, from_status, to_status, actor_role, actor_id, reason, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}

// FetchLogs — выборка audit trail для экранов разбора инцидентов.
// Пустые фильтры означают «все».
func (r *AuditRepo) FetchLogs(ctx context.Context, exportID, actorRole string, limit int) ([]audit.Event, error) {
	query := `SELECT id, export_id, seq, from_status, to_status, actor_role, actor_id, reason, timestamp
	          FROM audit_logs WHERE 1=1`

	var args []interface{}
	if exportID != "" {
		args = append(args, exportID)
		query += fmt.Sprintf(" AND export_id = $%d", len(args))
	}
	if actorRole != "" {
		args = append(args, actorRole)
		query += fmt.Sprintf(" AND actor_role = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", normalizeLimit(limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0)
	for rows.Next() {
		var e audit.Event
		err := rows.Scan(&e.ID, &e.ExportID, &e.Seq, &e.FromStatus, &e.ToStatus,
			&e.ActorRole, &e.ActorID, &e.Reason, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit log: %w", err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return events, nil
}
