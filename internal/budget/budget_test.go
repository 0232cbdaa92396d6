package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to, so budget tests never sleep.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestChecker(b ProcessingBudget) (*Checker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	c := NewChecker(b).WithClock(clk.now)
	c.Start()
	return c, clk
}

func TestCheckPageBudget_Exceeded(t *testing.T) {
	b := DefaultBudget()
	b.MaxTimePerPageMS = 10

	c, clk := newTestChecker(b)
	clk.advance(20 * time.Millisecond)

	status := c.CheckPageBudget()
	assert.True(t, status.BudgetExceeded)
	assert.Equal(t, int64(20), status.TimeElapsedMS)
	assert.Equal(t, int64(0), status.TimeRemainingMS)
	// Percent is intentionally unclamped past 100.
	assert.InDelta(t, 200.0, status.BudgetUsedPercent, 0.001)
}

func TestCheckPageBudget_WithinLimit(t *testing.T) {
	b := DefaultBudget()
	b.MaxTimePerPageMS = 100

	c, clk := newTestChecker(b)
	clk.advance(40 * time.Millisecond)

	status := c.CheckPageBudget()
	assert.False(t, status.BudgetExceeded)
	assert.Equal(t, int64(40), status.TimeElapsedMS)
	assert.Equal(t, int64(60), status.TimeRemainingMS)
	assert.InDelta(t, 40.0, status.BudgetUsedPercent, 0.001)
}

func TestCheckDocumentBudget_IndependentOfPageBudget(t *testing.T) {
	b := DefaultBudget()
	b.MaxTimePerPageMS = 10
	b.MaxTimePerDocumentMS = 1000

	c, clk := newTestChecker(b)
	clk.advance(50 * time.Millisecond)

	assert.True(t, c.CheckPageBudget().BudgetExceeded)
	assert.False(t, c.CheckDocumentBudget().BudgetExceeded)
}

func TestShouldStop_AllFieldsMet(t *testing.T) {
	b := DefaultBudget()
	b.EarlyStopThreshold = 90
	b.EarlyStopFields = []string{"invoice_number", "total_amount"}

	c, _ := newTestChecker(b)
	decision := c.ShouldStop(map[string]float64{
		"invoice_number": 95,
		"total_amount":   90,
		"vendor_name":    20, // not critical, must not matter
	})

	require.True(t, decision.ShouldStop)
	assert.ElementsMatch(t, []string{"invoice_number", "total_amount"}, decision.FieldsMet)
	assert.Empty(t, decision.FieldsPending)
}

func TestShouldStop_MissingFieldCountsAsPending(t *testing.T) {
	b := DefaultBudget()
	b.EarlyStopThreshold = 90
	b.EarlyStopFields = []string{"invoice_number", "total_amount"}

	c, _ := newTestChecker(b)
	decision := c.ShouldStop(map[string]float64{"invoice_number": 99})

	assert.False(t, decision.ShouldStop)
	assert.Equal(t, []string{"total_amount"}, decision.FieldsPending)
	assert.Equal(t, 0.0, decision.ConfidenceScores["total_amount"])
}

func TestShouldStop_BelowThreshold(t *testing.T) {
	b := DefaultBudget()
	b.EarlyStopThreshold = 90
	b.EarlyStopFields = []string{"invoice_number"}

	c, _ := newTestChecker(b)
	decision := c.ShouldStop(map[string]float64{"invoice_number": 89.9})

	assert.False(t, decision.ShouldStop)
	assert.Contains(t, decision.Reason, "invoice_number")
}

func TestPassAndVariantCaps(t *testing.T) {
	b := DefaultBudget()
	b.MaxVariantsPerPage = 2
	b.MaxPassesPerZone = 3

	c, _ := newTestChecker(b)
	assert.True(t, c.VariantAllowed(1))
	assert.False(t, c.VariantAllowed(2))
	assert.True(t, c.PassAllowed(2))
	assert.False(t, c.PassAllowed(3))
}

func TestElapsedMS_BeforeStart(t *testing.T) {
	c := NewChecker(DefaultBudget())
	assert.Equal(t, int64(0), c.ElapsedMS())
}
