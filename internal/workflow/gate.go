package workflow

import (
	"fmt"
	"strings"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// Action — один доступный актору шаг из текущего статуса.
type Action struct {
	TargetStatus domain.Status `json:"target_status"`
	Kind         Kind          `json:"kind"`
}

// Gate вычисляет набор действий, доступных роли в данном статусе.
// Несовпадение роли — не ошибка, а пустой набор: в 403 его превращает
// уже граница API. Ошибки здесь только конфигурационные.
type Gate struct {
	reg   *Registry
	table *Table
}

func NewGate(reg *Registry, table *Table) *Gate {
	return &Gate{reg: reg, table: table}
}

// NormalizeRole приводит роль к каноническому виду. Роли в токенах
// исторически гуляют по регистру ("Exporter", "NATIONAL-BANK").
func NormalizeRole(role domain.Role) domain.Role {
	return domain.Role(strings.ToLower(strings.TrimSpace(string(role))))
}

// AvailableActions возвращает действия, доступные роли из данного статуса.
//
// Служебная роль system никогда не сопоставляется с живым актором:
// автоматические ребра применяет только сам движок, поэтому для запроса
// с role=system набор всегда пуст.
func (g *Gate) AvailableActions(status domain.Status, role domain.Role) ([]Action, error) {
	if _, err := g.reg.Lookup(status); err != nil {
		return nil, err
	}

	role = NormalizeRole(role)
	if !g.table.KnownRole(role) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	if role == domain.RoleSystem {
		return []Action{}, nil
	}

	actions := make([]Action, 0, 2)
	for _, r := range g.table.RulesFrom(status) {
		if r.RequiredRole != role {
			continue
		}
		actions = append(actions, Action{TargetStatus: r.To, Kind: r.Kind})
	}
	return actions, nil
}
