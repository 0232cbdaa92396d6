// Package pipeline orchestrates one document's journey: preprocessing with
// shield masking, budgeted multi-pass OCR, field extraction, confidence
// calibration, validation, and handoff to the review queue.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/budget"
	"github.com/sells-group/billscan/internal/calibrate"
	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/multipass"
	"github.com/sells-group/billscan/internal/ocr"
	"github.com/sells-group/billscan/internal/preprocess"
	"github.com/sells-group/billscan/internal/review"
	"github.com/sells-group/billscan/internal/shield"
)

// PageResult is the outcome of one page's preprocessing and OCR.
type PageResult struct {
	PageNumber       int                       `json:"page_number"`
	OCR              *model.MultiPassOCRResult `json:"ocr"`
	PreprocessSteps  []string                  `json:"preprocess_steps"`
	ProcessingTimeMS int64                     `json:"processing_time_ms"`
}

// DocumentResult is the full outcome of processing one document.
type DocumentResult struct {
	VendorID         string                    `json:"vendor_id"`
	VendorName       string                    `json:"vendor_name"`
	Pages            []PageResult              `json:"pages"`
	Text             string                    `json:"text"`
	Fields           []model.ExtractedField    `json:"fields"`
	Validation       model.ValidationResult    `json:"validation"`
	Case             model.ReviewCase          `json:"case"`
	EarlyStop        *budget.EarlyStopDecision `json:"early_stop,omitempty"`
	Budget           budget.BudgetStatus       `json:"budget"`
	ProcessingTimeMS int64                     `json:"processing_time_ms"`
}

// Processor runs documents through the full extraction pipeline. One
// Processor serves many documents; each run gets its own budget checker.
type Processor struct {
	pre        *preprocess.Preprocessor
	shields    *shield.Engine
	engine     ocr.Engine
	passes     []model.OCRPassConfig
	budget     budget.ProcessingBudget
	calibrator *calibrate.Calibrator
	cases      *review.CaseService
	required   []string
	now        func() time.Time
}

// New wires a Processor from configuration and shared services. The shield
// engine gets the default invoice zones installed up front so the critical-zone
// rules apply to every shield inserted afterwards, seeded or detected.
func New(cfg *config.Config, engine ocr.Engine, shields *shield.Engine, calibrator *calibrate.Calibrator, cases *review.CaseService) *Processor {
	shields.SetCriticalZones(shield.DefaultInvoiceZones())
	return &Processor{
		pre:        preprocess.New(),
		shields:    shields,
		engine:     engine,
		passes:     multipass.DefaultPasses(),
		budget:     BudgetFromConfig(cfg.Budget),
		calibrator: calibrator,
		cases:      cases,
		required:   cfg.Review.RequiredFields,
		now:        time.Now,
	}
}

// WithClock substitutes the time source; intended for tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	p.pre.WithClock(now)
	return p
}

// WithPasses overrides the OCR pass set.
func (p *Processor) WithPasses(passes []model.OCRPassConfig) *Processor {
	p.passes = passes
	return p
}

// BudgetFromConfig converts the config section into run limits, falling back
// to defaults for unset values.
func BudgetFromConfig(cfg config.BudgetConfig) budget.ProcessingBudget {
	b := budget.DefaultBudget()
	if cfg.MaxTimePerPageMS > 0 {
		b.MaxTimePerPageMS = cfg.MaxTimePerPageMS
	}
	if cfg.MaxTimePerDocumentMS > 0 {
		b.MaxTimePerDocumentMS = cfg.MaxTimePerDocumentMS
	}
	if cfg.MaxVariantsPerPage > 0 {
		b.MaxVariantsPerPage = cfg.MaxVariantsPerPage
	}
	if cfg.MaxPassesPerZone > 0 {
		b.MaxPassesPerZone = cfg.MaxPassesPerZone
	}
	if cfg.EarlyStopThreshold > 0 {
		b.EarlyStopThreshold = cfg.EarlyStopThreshold
	}
	if len(cfg.EarlyStopFields) > 0 {
		b.EarlyStopFields = cfg.EarlyStopFields
	}
	return b
}

// ProcessDocument runs every page of a document through the pipeline and
// opens a review case for the result. Pages run sequentially so budget and
// early-stop checks between pages can cut the run short; a stopped run still
// produces a case from the pages that did complete.
func (p *Processor) ProcessDocument(ctx context.Context, pagePaths []string) (*DocumentResult, error) {
	if len(pagePaths) == 0 {
		return nil, eris.New("pipeline: no pages to process")
	}

	start := p.now()
	checker := budget.NewChecker(p.budget).WithClock(p.now)
	checker.Start()
	mp := multipass.New(p.engine, p.passes, checker)

	result := &DocumentResult{}
	var pageTexts []string

	for i, path := range pagePaths {
		if status := checker.CheckDocumentBudget(); status.BudgetExceeded {
			zap.L().Warn("pipeline: document budget exceeded, stopping",
				zap.Int("pages_done", i),
				zap.Float64("budget_used_pct", status.BudgetUsedPercent),
			)
			break
		}

		page, err := p.processPage(ctx, mp, path, i+1)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: page %d", i+1)
		}
		result.Pages = append(result.Pages, *page)
		pageTexts = append(pageTexts, page.OCR.Text)

		// Early stop is a document-level decision: fields extracted from the
		// text so far, checked against the critical-field threshold.
		fields := ExtractFields(strings.Join(pageTexts, "\n"), page.OCR.Confidence*100)
		if decision := checker.ShouldStop(FieldConfidences(fields)); decision.ShouldStop {
			zap.L().Info("pipeline: early stop",
				zap.Int("pages_done", i+1),
				zap.Strings("fields_met", decision.FieldsMet),
			)
			result.EarlyStop = &decision
			break
		}
	}

	if len(result.Pages) == 0 {
		return nil, eris.New("pipeline: budget exhausted before any page completed")
	}

	result.Text = strings.Join(pageTexts, "\n")
	result.Budget = checker.CheckDocumentBudget()
	result.ProcessingTimeMS = p.now().Sub(start).Milliseconds()

	p.finishDocument(result, pageTexts)
	return result, nil
}

// processPage masks applied shields, preprocesses, and OCRs one page image.
func (p *Processor) processPage(ctx context.Context, mp *multipass.Service, path string, pageNum int) (*PageResult, error) {
	pageStart := p.now()

	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}

	// Logo detection runs on the raw first page; candidates land as suggested
	// shields for a reviewer, never masking the run that found them.
	if pageNum == 1 {
		for _, s := range shield.DetectLogoCandidates(img) {
			if _, err := p.shields.Insert(s); err != nil {
				zap.L().Warn("pipeline: logo shield candidate rejected", zap.Error(err))
			}
		}
	}

	img = preprocess.MaskShields(img, p.shields.AppliedShields())

	processed, preResult, err := p.pre.Apply(ctx, img, preprocess.DefaultInvoicePipeline())
	if err != nil {
		return nil, eris.Wrap(err, "preprocess")
	}

	tmp, err := writeTempPNG(processed)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	ocrResult, err := mp.ProcessImage(ctx, tmp)
	if err != nil {
		return nil, eris.Wrap(err, "ocr")
	}

	zap.L().Debug("pipeline: page processed",
		zap.Int("page", pageNum),
		zap.Float64("confidence", ocrResult.Confidence),
		zap.Int("passes", ocrResult.Merge.TotalPasses),
	)
	return &PageResult{
		PageNumber:       pageNum,
		OCR:              ocrResult,
		PreprocessSteps:  preResult.StepsApplied,
		ProcessingTimeMS: p.now().Sub(pageStart).Milliseconds(),
	}, nil
}

// finishDocument extracts fields from the combined text, calibrates them,
// validates, opens the review case, and feeds repetitive-line shield
// candidates back to the shield engine.
func (p *Processor) finishDocument(result *DocumentResult, pageTexts []string) {
	result.Fields = ExtractFields(result.Text, documentConfidence(result.Pages)*100)

	for _, f := range result.Fields {
		if f.Name == "vendor_name" {
			result.VendorName = f.Value
			result.VendorID = calibrate.NormalizeVendorID(f.Value)
			break
		}
	}

	for i := range result.Fields {
		result.Fields[i].Confidence = p.calibrator.CalibrateConfidence(result.Fields[i].Confidence, result.VendorID)
	}

	result.Validation = review.Validate(result.Fields, p.required)
	result.Case = p.cases.CreateCase(result.Fields, &result.Validation, documentConfidence(result.Pages)*100, result.VendorID, result.VendorName)

	for _, s := range shield.DetectRepetitiveLines(pageTexts) {
		if _, err := p.shields.Insert(s); err != nil {
			zap.L().Warn("pipeline: shield candidate rejected", zap.Error(err))
		}
	}

	zap.L().Info("pipeline: document processed",
		zap.String("case_id", result.Case.CaseID),
		zap.Int("pages", len(result.Pages)),
		zap.Int("fields", len(result.Fields)),
		zap.Bool("can_approve", result.Validation.CanApprove),
		zap.Int64("elapsed_ms", result.ProcessingTimeMS),
	)
}

// RecordOutcome feeds a reviewed case back into calibration: an approval
// marks every extracted field correct, a rejection marks them all wrong.
func (p *Processor) RecordOutcome(c model.ReviewCase, approved bool) {
	points := make([]model.CalibrationDataPoint, 0, len(c.Fields))
	for _, f := range c.Fields {
		points = append(points, model.CalibrationDataPoint{
			PredictedConfidence: f.Confidence,
			ActualCorrect:       approved,
			FieldName:           f.Name,
			VendorID:            c.VendorID,
		})
	}
	p.calibrator.RecordBatch(points)
}

// documentConfidence averages page confidences, weighted by nothing fancier
// than page count; a one-page document is just its page confidence.
func documentConfidence(pages []PageResult) float64 {
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, page := range pages {
		sum += page.OCR.Confidence
	}
	return sum / float64(len(pages))
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: decode %s", path)
	}
	return img, nil
}

func writeTempPNG(img image.Image) (string, error) {
	f, err := os.CreateTemp("", "billscan-page-*.png")
	if err != nil {
		return "", eris.Wrap(err, "pipeline: temp file")
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", eris.Wrap(err, "pipeline: encode page")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("pipeline: close %s", f.Name()))
	}
	return f.Name(), nil
}
