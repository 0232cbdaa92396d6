// Package budget tracks per-document processing limits and decides when
// accumulated field confidence is good enough to stop scheduling more OCR work.
package budget

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProcessingBudget is the immutable limit set for one pipeline run.
type ProcessingBudget struct {
	MaxTimePerPageMS     int64    `json:"max_time_per_page_ms"`
	MaxTimePerDocumentMS int64    `json:"max_time_per_document_ms"`
	MaxVariantsPerPage   int      `json:"max_variants_per_page"`
	MaxPassesPerZone     int      `json:"max_passes_per_zone"`
	EarlyStopThreshold   float64  `json:"early_stop_confidence_threshold"`
	EarlyStopFields      []string `json:"early_stop_critical_fields"`
}

// DefaultBudget returns limits suitable for a typical scanned invoice.
func DefaultBudget() ProcessingBudget {
	return ProcessingBudget{
		MaxTimePerPageMS:     30000,
		MaxTimePerDocumentMS: 120000,
		MaxVariantsPerPage:   5,
		MaxPassesPerZone:     3,
		EarlyStopThreshold:   90,
		EarlyStopFields:      []string{"invoice_number", "total_amount", "invoice_date"},
	}
}

// BudgetStatus reports elapsed time against one budget dimension.
// BudgetUsedPercent is deliberately not clamped at 100 so callers can log how
// far past the limit a run went.
type BudgetStatus struct {
	TimeElapsedMS     int64   `json:"time_elapsed_ms"`
	TimeRemainingMS   int64   `json:"time_remaining_ms"`
	BudgetExceeded    bool    `json:"budget_exceeded"`
	BudgetUsedPercent float64 `json:"budget_used_percent"`
}

// EarlyStopDecision is the outcome of a confidence sufficiency check.
type EarlyStopDecision struct {
	ShouldStop       bool               `json:"should_stop"`
	Reason           string             `json:"reason"`
	FieldsMet        []string           `json:"fields_met"`
	FieldsPending    []string           `json:"fields_pending"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
}

// Checker tracks elapsed time against a ProcessingBudget. The clock is
// injectable so tests never depend on real elapsed time; the default reads
// time.Now, whose monotonic component makes Since immune to wall-clock jumps.
type Checker struct {
	budget ProcessingBudget
	start  time.Time
	now    func() time.Time
}

// NewChecker creates a Checker for one pipeline run. Call Start before the
// first pass.
func NewChecker(b ProcessingBudget) *Checker {
	return &Checker{budget: b, now: time.Now}
}

// WithClock substitutes the time source; intended for tests.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// Start captures the run's start instant.
func (c *Checker) Start() {
	c.start = c.now()
}

// ElapsedMS returns milliseconds since Start.
func (c *Checker) ElapsedMS() int64 {
	if c.start.IsZero() {
		return 0
	}
	return c.now().Sub(c.start).Milliseconds()
}

// CheckPageBudget checks elapsed time against the per-page limit.
func (c *Checker) CheckPageBudget() BudgetStatus {
	return c.checkTime(c.budget.MaxTimePerPageMS)
}

// CheckDocumentBudget checks elapsed time against the per-document limit.
func (c *Checker) CheckDocumentBudget() BudgetStatus {
	return c.checkTime(c.budget.MaxTimePerDocumentMS)
}

func (c *Checker) checkTime(maxMS int64) BudgetStatus {
	elapsed := c.ElapsedMS()
	status := BudgetStatus{
		TimeElapsedMS:   elapsed,
		TimeRemainingMS: maxMS - elapsed,
	}
	if maxMS > 0 {
		status.BudgetUsedPercent = float64(elapsed) / float64(maxMS) * 100
		status.BudgetExceeded = elapsed >= maxMS
	}
	if status.TimeRemainingMS < 0 {
		status.TimeRemainingMS = 0
	}
	return status
}

// VariantAllowed reports whether another preprocessing variant may be produced
// for the current page.
func (c *Checker) VariantAllowed(variantsSoFar int) bool {
	return c.budget.MaxVariantsPerPage <= 0 || variantsSoFar < c.budget.MaxVariantsPerPage
}

// PassAllowed reports whether another OCR pass may be scheduled for a zone.
func (c *Checker) PassAllowed(zonePasses int) bool {
	return c.budget.MaxPassesPerZone <= 0 || zonePasses < c.budget.MaxPassesPerZone
}

// ShouldStop decides whether every critical field has reached the early-stop
// threshold. A field absent from the confidence set counts as confidence 0 and
// keeps the run going; it is never treated as met.
func (c *Checker) ShouldStop(fieldConfidences map[string]float64) EarlyStopDecision {
	decision := EarlyStopDecision{
		ConfidenceScores: make(map[string]float64, len(c.budget.EarlyStopFields)),
	}

	for _, field := range c.budget.EarlyStopFields {
		conf := fieldConfidences[field]
		decision.ConfidenceScores[field] = conf
		if conf >= c.budget.EarlyStopThreshold {
			decision.FieldsMet = append(decision.FieldsMet, field)
		} else {
			decision.FieldsPending = append(decision.FieldsPending, field)
		}
	}
	sort.Strings(decision.FieldsMet)
	sort.Strings(decision.FieldsPending)

	if len(c.budget.EarlyStopFields) > 0 && len(decision.FieldsPending) == 0 {
		decision.ShouldStop = true
		decision.Reason = fmt.Sprintf("all %d critical fields at or above %.0f", len(decision.FieldsMet), c.budget.EarlyStopThreshold)
	} else {
		decision.Reason = fmt.Sprintf("pending: %s", strings.Join(decision.FieldsPending, ", "))
	}
	return decision
}
