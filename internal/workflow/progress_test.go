package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// Прямой путь конвейера в порядке прохождения.
var happyPath = []domain.Status{
	domain.StatusDraft, domain.StatusPending,
	domain.StatusECXPending, domain.StatusECXVerified,
	domain.StatusECTALicensePending, domain.StatusECTALicenseApproved,
	domain.StatusECTAQualityPending, domain.StatusECTAQualityApproved,
	domain.StatusECTAOriginPending, domain.StatusECTAOriginApproved,
	domain.StatusECTAContractPending, domain.StatusECTAContractApproved,
	domain.StatusBankDocumentPending, domain.StatusBankDocumentVerified,
	domain.StatusFXApplicationPending, domain.StatusFXApproved,
	domain.StatusCustomsPending, domain.StatusCustomsCleared,
	domain.StatusShipmentPending, domain.StatusShipmentScheduled,
	domain.StatusShipped, domain.StatusArrived,
	domain.StatusImportCustomsPending, domain.StatusImportCustomsCleared,
	domain.StatusDelivered, domain.StatusPaymentPending,
	domain.StatusPaymentReceived, domain.StatusFXRepatriated,
	domain.StatusCompleted,
}

func TestProgressMonotonicAlongHappyPath(t *testing.T) {
	calc := NewCalculator(NewRegistry())

	prev := -1
	for _, s := range happyPath {
		pct, err := calc.ProgressOf(s)
		require.NoError(t, err)
		assert.Greater(t, pct, prev, "progress must strictly grow at %s", s)
		assert.GreaterOrEqual(t, pct, 0)
		assert.LessOrEqual(t, pct, 100)
		prev = pct
	}
}

func TestProgressEndpoints(t *testing.T) {
	calc := NewCalculator(NewRegistry())

	done, err := calc.ProgressOf(domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 100, done)

	cancelled, err := calc.ProgressOf(domain.StatusCancelled)
	require.NoError(t, err)
	assert.Zero(t, cancelled)

	_, err = calc.ProgressOf(domain.Status("LOST"))
	assert.Error(t, err)
}

// Отклонение — пауза внутри фазы: процент равен pending-статусу той же фазы.
func TestProgressRejectionKeepsStageProgress(t *testing.T) {
	calc := NewCalculator(NewRegistry())

	pairs := []struct{ rejected, pending domain.Status }{
		{domain.StatusECXRejected, domain.StatusECXPending},
		{domain.StatusECTALicenseRejected, domain.StatusECTALicensePending},
		{domain.StatusFXRejected, domain.StatusFXApplicationPending},
		{domain.StatusCustomsRejected, domain.StatusCustomsPending},
		{domain.StatusShipmentRejected, domain.StatusShipmentPending},
	}
	for _, p := range pairs {
		got, err := calc.ProgressOf(p.rejected)
		require.NoError(t, err)
		want, err := calc.ProgressOf(p.pending)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%s vs %s", p.rejected, p.pending)
	}
}

// Детерминизм: одинаковый вход — одинаковый выход, без скрытого состояния.
func TestProgressDeterministic(t *testing.T) {
	calc := NewCalculator(NewRegistry())

	for _, s := range happyPath {
		a, err := calc.ProgressOf(s)
		require.NoError(t, err)
		b, err := calc.ProgressOf(s)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestProgressSummary(t *testing.T) {
	calc := NewCalculator(NewRegistry())

	stages, err := calc.Summary(domain.StatusFXApplicationPending)
	require.NoError(t, err)
	require.NotEmpty(t, stages)

	var current int
	for _, sp := range stages {
		if sp.Current {
			current++
			assert.Equal(t, "fx_approval", sp.Stage.Key)
			assert.True(t, sp.Reached)
		}
		// Все фазы до текущей пройдены, после — нет
		if sp.Stage.Key == "ecx_verification" {
			assert.True(t, sp.Reached)
		}
		if sp.Stage.Key == "shipping" {
			assert.False(t, sp.Reached)
		}
	}
	assert.Equal(t, 1, current)

	// Для CANCELLED не пройдено ничего
	stages, err = calc.Summary(domain.StatusCancelled)
	require.NoError(t, err)
	for _, sp := range stages {
		assert.False(t, sp.Reached)
		assert.False(t, sp.Current)
	}
}
