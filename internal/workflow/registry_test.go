package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()

	def, err := reg.Lookup(domain.StatusECXPending)
	require.NoError(t, err)
	assert.Equal(t, "ecx_verification", def.Stage.Key)
	assert.False(t, def.IsRejection)
	assert.False(t, def.IsTerminal)

	_, err = reg.Lookup(domain.Status("TELEPORTED"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownStatus))
}

func TestRegistryTerminalStatuses(t *testing.T) {
	reg := NewRegistry()

	for _, s := range reg.Statuses() {
		def, err := reg.Lookup(s)
		require.NoError(t, err)
		terminal := s == domain.StatusCompleted || s == domain.StatusCancelled
		assert.Equal(t, terminal, def.IsTerminal, "status %s", s)
	}
}

// Статус отклонения должен наследовать вес pending-статуса своей фазы:
// иначе прогресс-бар прыгал бы при отклонении.
func TestRegistryRejectionWeightsMatchStagePending(t *testing.T) {
	reg := NewRegistry()

	pendingByStage := map[string]int{}
	for _, s := range reg.Statuses() {
		def, _ := reg.Lookup(s)
		if def.IsRejection {
			continue
		}
		if w, ok := pendingByStage[def.Stage.Key]; !ok || def.ProgressWeight < w {
			pendingByStage[def.Stage.Key] = def.ProgressWeight
		}
	}

	for _, s := range reg.Statuses() {
		def, _ := reg.Lookup(s)
		if !def.IsRejection {
			continue
		}
		assert.Equal(t, pendingByStage[def.Stage.Key], def.ProgressWeight,
			"rejection %s must carry its stage's pending weight", s)
	}
}

func TestRegistryStagesInOrder(t *testing.T) {
	reg := NewRegistry()

	stages := reg.StagesInOrder()
	require.NotEmpty(t, stages)
	for i := 1; i < len(stages); i++ {
		assert.Greater(t, stages[i].Order, stages[i-1].Order)
	}
	// Отмена — выход из конвейера, в списке фаз ее быть не должно
	for _, st := range stages {
		assert.NotEqual(t, "cancellation", st.Key)
	}
}

func TestRegistryMaxWeightIsCompleted(t *testing.T) {
	reg := NewRegistry()

	def, err := reg.Lookup(domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, reg.maxProgressWeight(), def.ProgressWeight)

	cancelled, err := reg.Lookup(domain.StatusCancelled)
	require.NoError(t, err)
	assert.Zero(t, cancelled.ProgressWeight)
}
