// Package shield holds the cleanup-shield set for a document and decides which
// shields are actually applied before OCR. It never touches image pixels; the
// preprocessing layer consumes AppliedShields and does the masking.
package shield

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/model"
)

const (
	// dedupIoU is the similarity above which two same-type shields are
	// considered the same region.
	dedupIoU = 0.85
	// warnOverlap is the critical-zone overlap fraction that earns a warning.
	warnOverlap = 0.05
	// forceSuggestOverlap is the overlap fraction past which a shield may
	// never be silently applied.
	forceSuggestOverlap = 0.10
)

// ErrInvalidBBox is returned when a shield's bounding box leaves the unit square.
var ErrInvalidBBox = eris.New("shield: bbox outside [0,1] bounds")

// Engine owns the shield set for one document. Safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	shields []model.CleanupShield
	zones   []model.CriticalZone
	now     func() time.Time
}

// NewEngine creates an empty Engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithClock substitutes the time source; intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// SetCriticalZones installs the zones whose content must not be redacted.
// Called by the pipeline before any shields are inserted.
func (e *Engine) SetCriticalZones(zones []model.CriticalZone) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zones = zones
}

// DefaultInvoiceZones covers the regions of a typical invoice the extractor
// reads from: the header block (invoice number, date, vendor), the line-item
// table, and the totals block. A vendor template can replace these with
// tighter zones via SetCriticalZones.
func DefaultInvoiceZones() []model.CriticalZone {
	return []model.CriticalZone{
		{Name: model.ZoneHeader, BBox: model.NormalizedBBox{X: 0.25, Y: 0, Width: 0.75, Height: 0.18}},
		{Name: model.ZoneLineItems, BBox: model.NormalizedBBox{X: 0, Y: 0.3, Width: 1, Height: 0.35}},
		{Name: model.ZoneTotals, BBox: model.NormalizedBBox{X: 0.45, Y: 0.65, Width: 0.55, Height: 0.3}},
	}
}

// Seed inserts pre-existing vendor/template rule shields before auto-detection
// runs. Each goes through the same validation, overlap, and dedup rules.
func (e *Engine) Seed(shields []model.CleanupShield) error {
	for _, s := range shields {
		if _, err := e.Insert(s); err != nil {
			return eris.Wrapf(err, "shield: seed %s", s.ID)
		}
	}
	return nil
}

// Insert validates and adds a shield, applying the critical-zone and
// deduplication rules. It returns the shield that survives insertion, which is
// the existing one when the new shield loses a dedup comparison.
func (e *Engine) Insert(s model.CleanupShield) (model.CleanupShield, error) {
	if !s.BBox.IsValid() {
		return model.CleanupShield{}, ErrInvalidBBox
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := e.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	e.enforceCriticalZones(&s)

	// Dedup against same-type shields.
	for i := range e.shields {
		existing := &e.shields[i]
		if existing.Type != s.Type {
			continue
		}
		if existing.BBox.IoU(s.BBox) < dedupIoU {
			continue
		}
		if shieldOutranks(s, *existing) {
			zap.L().Debug("shield: replacing duplicate",
				zap.String("kept", s.ID),
				zap.String("dropped", existing.ID),
				zap.String("type", string(s.Type)),
			)
			e.shields[i] = s
			return s, nil
		}
		zap.L().Debug("shield: duplicate discarded",
			zap.String("kept", existing.ID),
			zap.String("dropped", s.ID),
			zap.String("type", string(s.Type)),
		)
		return *existing, nil
	}

	e.shields = append(e.shields, s)
	return s, nil
}

// enforceCriticalZones applies the overlap rules under the engine lock.
func (e *Engine) enforceCriticalZones(s *model.CleanupShield) {
	for _, zone := range e.zones {
		overlap := s.BBox.OverlapRatio(zone.BBox)
		if overlap < warnOverlap {
			continue
		}
		if overlap >= forceSuggestOverlap {
			if s.ApplyMode != model.ApplyModeSuggested {
				zap.L().Warn("shield: critical-zone overlap forces suggested mode",
					zap.String("shield", s.ID),
					zap.String("zone", string(zone.Name)),
					zap.Float64("overlap", overlap),
				)
				s.ApplyMode = model.ApplyModeSuggested
			}
			s.WhyDetected = appendNote(s.WhyDetected, fmt.Sprintf("overlaps %s zone by %.0f%%, requires confirmation", zone.Name, overlap*100))
			continue
		}
		zap.L().Warn("shield: near critical zone",
			zap.String("shield", s.ID),
			zap.String("zone", string(zone.Name)),
			zap.Float64("overlap", overlap),
		)
		s.WhyDetected = appendNote(s.WhyDetected, fmt.Sprintf("near %s zone (%.0f%% overlap)", zone.Name, overlap*100))
	}
}

// shieldOutranks reports whether a should replace b under the precedence rules:
// higher provenance source wins, ties go to higher confidence.
func shieldOutranks(a, b model.CleanupShield) bool {
	if a.Provenance.Source != b.Provenance.Source {
		return a.Provenance.Source > b.Provenance.Source
	}
	return a.Confidence > b.Confidence
}

// SetApplyMode changes the apply mode of an existing shield. Apply mode and
// UpdatedAt are the only mutable fields after creation.
func (e *Engine) SetApplyMode(id string, mode model.ApplyMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.shields {
		if e.shields[i].ID == id {
			e.shields[i].ApplyMode = mode
			e.shields[i].UpdatedAt = e.now()
			return nil
		}
	}
	return eris.Errorf("shield: %s not found", id)
}

// Get returns the shield with the given id.
func (e *Engine) Get(id string) (model.CleanupShield, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.shields {
		if s.ID == id {
			return s, true
		}
	}
	return model.CleanupShield{}, false
}

// Shields returns a copy of the full shield set.
func (e *Engine) Shields() []model.CleanupShield {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.CleanupShield, len(e.shields))
	copy(out, e.shields)
	return out
}

// AppliedShields returns only shields that will actually mask pixels.
func (e *Engine) AppliedShields() []model.CleanupShield {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.CleanupShield
	for _, s := range e.shields {
		if s.ApplyMode == model.ApplyModeApplied {
			out = append(out, s)
		}
	}
	return out
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
