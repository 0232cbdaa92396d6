// Package multipass runs several differently-configured OCR passes over one
// image and merges their output by confidence-weighted plurality voting.
package multipass

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/billscan/internal/budget"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/ocr"
)

// ErrEmptyMerge indicates a merge was requested with no pass results, which is
// a caller bug rather than a recognition failure.
var ErrEmptyMerge = eris.New("multipass: no pass results to merge")

// maxConfidence caps merged output; the merge never reports full certainty.
const maxConfidence = 0.99

// zoneKey identifies the zone a pass targets; passes without a region all
// share the full-page zone.
func zoneKey(region *model.NormalizedBBox) string {
	if region == nil {
		return "full_page"
	}
	return fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", region.X, region.Y, region.Width, region.Height)
}

// Service runs a fixed pass set through an OCR engine.
type Service struct {
	engine  ocr.Engine
	passes  []model.OCRPassConfig
	checker *budget.Checker
}

// New creates a Service. A nil checker disables budget polling.
func New(engine ocr.Engine, passes []model.OCRPassConfig, checker *budget.Checker) *Service {
	if len(passes) == 0 {
		passes = DefaultPasses()
	}
	return &Service{engine: engine, passes: passes, checker: checker}
}

// DefaultPasses is the standard three-pass configuration for invoices: a plain
// full-page read, a table-aware pass weighted up because invoices are mostly
// tabular, and a small-text pass weighted down because fine print recognizes
// poorly.
func DefaultPasses() []model.OCRPassConfig {
	return []model.OCRPassConfig{
		{Name: "full_page", Mode: model.ModeFullPage, PSM: 3, Weight: 1.0},
		{Name: "table_analysis", Mode: model.ModeTableAnalysis, PSM: 6, Weight: 1.2},
		{Name: "small_text", Mode: model.ModeSmallText, PSM: 11, Weight: 0.8},
	}
}

// ProcessImage runs the configured passes and merges their results. Passes run
// in parallel; the budget is polled before scheduling each pass, and passes
// already in flight always complete. Individual pass failures are logged and
// skipped as long as at least one pass succeeds.
func (s *Service) ProcessImage(ctx context.Context, imagePath string) (*model.MultiPassOCRResult, error) {
	g, gCtx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make([]*model.OCRResult, 0, len(s.passes))
	var passErrs []error

	scheduled := 0
	zonePasses := make(map[string]int)
	for _, pass := range s.passes {
		if s.checker != nil && scheduled > 0 {
			if status := s.checker.CheckPageBudget(); status.BudgetExceeded {
				zap.L().Warn("multipass: page budget exhausted, skipping remaining passes",
					zap.String("image", imagePath),
					zap.Int("scheduled", scheduled),
					zap.Float64("budget_used_percent", status.BudgetUsedPercent),
				)
				break
			}
		}
		if s.checker != nil && !s.checker.VariantAllowed(scheduled) {
			break
		}
		zone := zoneKey(pass.Region)
		if s.checker != nil && !s.checker.PassAllowed(zonePasses[zone]) {
			zap.L().Debug("multipass: zone pass cap reached, skipping pass",
				zap.String("pass", pass.Name),
				zap.String("zone", zone),
			)
			continue
		}
		zonePasses[zone]++
		scheduled++

		g.Go(func() error {
			result, err := s.engine.Recognize(gCtx, imagePath, pass)
			if err != nil {
				zap.L().Warn("multipass: pass failed",
					zap.String("pass", pass.Name),
					zap.Error(err),
				)
				mu.Lock()
				passErrs = append(passErrs, err)
				mu.Unlock()
				return nil
			}
			weighted := *result
			if pass.Weight > 0 {
				weighted.Confidence = min(result.Confidence*pass.Weight, 1)
			}
			mu.Lock()
			results = append(results, &weighted)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "multipass: run passes")
	}
	if len(results) == 0 {
		if len(passErrs) > 0 {
			return nil, eris.Wrapf(passErrs[0], "multipass: all %d passes failed for %s", scheduled, imagePath)
		}
		return nil, eris.Wrapf(ErrEmptyMerge, "multipass: no passes scheduled for %s", imagePath)
	}

	deref := make([]model.OCRResult, len(results))
	for i, r := range results {
		deref[i] = *r
	}
	return Merge(deref)
}

// Merge combines pass results by positional line alignment and plurality vote.
//
// Alignment is by line index: row i holds every pass's line i, padded with the
// empty string when a pass produced fewer lines. This assumes passes segment
// the page into similar lines in the same order; it is a deliberate
// simplification, not a general sequence alignment, and passes with wildly
// different segmentation will vote past each other.
func Merge(results []model.OCRResult) (*model.MultiPassOCRResult, error) {
	if len(results) == 0 {
		return nil, ErrEmptyMerge
	}

	if len(results) == 1 {
		return &model.MultiPassOCRResult{
			OCRResult: results[0],
			Merge: model.MergeMetadata{
				TotalPasses:      1,
				AverageAgreement: 1.0,
			},
		}, nil
	}

	lines := make([][]string, len(results))
	maxLines := 0
	var totalTime int64
	var confSum float64
	for i, r := range results {
		lines[i] = strings.Split(r.Text, "\n")
		if len(lines[i]) > maxLines {
			maxLines = len(lines[i])
		}
		totalTime += r.ProcessingTimeMS
		confSum += r.Confidence
	}

	var merged []string
	var agreed, conflicts int
	for row := 0; row < maxLines; row++ {
		variants := make([]string, 0, len(results))
		for _, passLines := range lines {
			if row < len(passLines) {
				if v := strings.TrimSpace(passLines[row]); v != "" {
					variants = append(variants, v)
				}
			}
		}
		if len(variants) == 0 {
			merged = append(merged, "")
			continue
		}
		if allIdentical(variants) {
			merged = append(merged, variants[0])
			agreed++
			continue
		}
		merged = append(merged, plurality(variants))
		conflicts++
	}

	agreement := 1.0
	if agreed+conflicts > 0 {
		agreement = float64(agreed) / float64(agreed+conflicts)
	}

	confidence := min(confSum/float64(len(results))*(0.8+0.2*agreement), maxConfidence)

	return &model.MultiPassOCRResult{
		OCRResult: model.OCRResult{
			Text:             strings.Join(merged, "\n"),
			Confidence:       confidence,
			Engine:           "multipass",
			ProcessingTimeMS: totalTime,
		},
		Merge: model.MergeMetadata{
			TotalPasses:       len(results),
			ConflictsFound:    conflicts,
			ConflictsResolved: conflicts,
			AverageAgreement:  agreement,
		},
	}, nil
}

func allIdentical(variants []string) bool {
	for _, v := range variants[1:] {
		if v != variants[0] {
			return false
		}
	}
	return true
}

// plurality returns the most frequent variant; ties go to the first seen.
func plurality(variants []string) string {
	counts := make(map[string]int, len(variants))
	for _, v := range variants {
		counts[v]++
	}
	best := variants[0]
	for _, v := range variants {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}
