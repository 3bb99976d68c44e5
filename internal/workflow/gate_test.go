package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

func newTestGate() *Gate {
	return NewGate(NewRegistry(), NewTable())
}

func TestGateFiltersByRole(t *testing.T) {
	gate := newTestGate()

	// Экспортер из DRAFT может подать или отменить
	actions, err := gate.AvailableActions(domain.StatusDraft, domain.RoleExporter)
	require.NoError(t, err)
	targets := make(map[domain.Status]Kind, len(actions))
	for _, a := range actions {
		targets[a.TargetStatus] = a.Kind
	}
	assert.Equal(t, KindApproval, targets[domain.StatusPending])
	assert.Equal(t, KindRejection, targets[domain.StatusCancelled])
	assert.Len(t, actions, 2)

	// ECX в чужом статусе — пустой набор, не ошибка
	actions, err = gate.AvailableActions(domain.StatusDraft, domain.RoleECX)
	require.NoError(t, err)
	assert.NotNil(t, actions)
	assert.Empty(t, actions)
}

func TestGateNormalizesRoleCase(t *testing.T) {
	gate := newTestGate()

	actions, err := gate.AvailableActions(domain.StatusECXPending, domain.Role("  ECX "))
	require.NoError(t, err)
	assert.Len(t, actions, 2)
}

// Роль system зарезервирована за движком: живому актору с таким токеном
// автоматические ребра недоступны.
func TestGateSystemRoleGetsNothing(t *testing.T) {
	gate := newTestGate()

	actions, err := gate.AvailableActions(domain.StatusPending, domain.RoleSystem)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestGateUnknownInputs(t *testing.T) {
	gate := newTestGate()

	_, err := gate.AvailableActions(domain.Status("WARP"), domain.RoleExporter)
	assert.True(t, errors.Is(err, domain.ErrUnknownStatus))

	_, err = gate.AvailableActions(domain.StatusDraft, domain.Role("smuggler"))
	assert.True(t, errors.Is(err, domain.ErrUnknownRole))
}

func TestGateTerminalStatusHasNoActions(t *testing.T) {
	gate := newTestGate()

	for _, s := range []domain.Status{domain.StatusCompleted, domain.StatusCancelled} {
		actions, err := gate.AvailableActions(s, domain.RoleExporter)
		require.NoError(t, err)
		assert.Empty(t, actions, "terminal %s", s)
	}
}
