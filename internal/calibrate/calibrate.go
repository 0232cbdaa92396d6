// Package calibrate converts raw predicted confidences into calibrated
// probabilities of correctness using historical accuracy, bucketed by decile.
// Calibration never errors and never blocks the pipeline: with insufficient
// data it degrades to a pass-through of the predicted value.
package calibrate

import (
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
)

// bucketStats accumulates outcomes for one confidence decile.
type bucketStats struct {
	Total   int
	Correct int
}

func (b bucketStats) accuracy() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Correct) / float64(b.Total)
}

// Calibrator holds append-only global and per-vendor sample sets. Safe for
// concurrent use.
type Calibrator struct {
	mu             sync.RWMutex
	minSamples     int
	recalThreshold float64
	global         map[int]*bucketStats
	byVendor       map[string]map[int]*bucketStats
	points         []model.CalibrationDataPoint
}

// New creates a Calibrator. MinSamples guards against extrapolating from thin
// buckets; RecalibrationThreshold is the mean absolute calibration error (in
// confidence points) past which recalibration is recommended.
func New(cfg config.CalibrationConfig) *Calibrator {
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 5
	}
	threshold := cfg.RecalibrationThreshold
	if threshold <= 0 {
		threshold = 5.0
	}
	return &Calibrator{
		minSamples:     minSamples,
		recalThreshold: threshold,
		global:         make(map[int]*bucketStats),
		byVendor:       make(map[string]map[int]*bucketStats),
	}
}

// bucketOf floors a confidence into its decile bucket (87 -> 80, 100 -> 100).
func bucketOf(confidence float64) int {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return int(confidence/10) * 10
}

// Record appends one observed prediction-vs-outcome sample.
func (c *Calibrator) Record(point model.CalibrationDataPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(point)
}

// RecordBatch appends many samples under a single lock acquisition.
func (c *Calibrator) RecordBatch(points []model.CalibrationDataPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range points {
		c.record(p)
	}
}

func (c *Calibrator) record(point model.CalibrationDataPoint) {
	point.VendorID = NormalizeVendorID(point.VendorID)
	c.points = append(c.points, point)

	bucket := bucketOf(point.PredictedConfidence)
	bump(c.global, bucket, point.ActualCorrect)
	if point.VendorID != "" {
		vendor, ok := c.byVendor[point.VendorID]
		if !ok {
			vendor = make(map[int]*bucketStats)
			c.byVendor[point.VendorID] = vendor
		}
		bump(vendor, bucket, point.ActualCorrect)
	}
}

func bump(buckets map[int]*bucketStats, bucket int, correct bool) {
	b, ok := buckets[bucket]
	if !ok {
		b = &bucketStats{}
		buckets[bucket] = b
	}
	b.Total++
	if correct {
		b.Correct++
	}
}

// CalibrateConfidence maps a predicted confidence (0..100) to the empirical
// accuracy of its bucket. The vendor-specific bucket wins when it has enough
// samples; otherwise the global bucket; otherwise the prediction passes
// through unchanged.
func (c *Calibrator) CalibrateConfidence(predicted float64, vendorID string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bucket := bucketOf(predicted)

	if vendor, ok := c.byVendor[NormalizeVendorID(vendorID)]; ok {
		if b, ok := vendor[bucket]; ok && b.Total >= c.minSamples {
			return math.Floor(b.accuracy() * 100)
		}
	}
	if b, ok := c.global[bucket]; ok && b.Total >= c.minSamples {
		return math.Floor(b.accuracy() * 100)
	}
	return predicted
}

// CalibrationError is the mean absolute difference between each qualifying
// bucket's midpoint confidence and its observed accuracy, in confidence
// points. Buckets below the sample threshold are excluded; they would be
// noise, not signal.
func (c *Calibrator) CalibrationError(vendorID string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buckets := c.global
	if vendorID != "" {
		vendor, ok := c.byVendor[NormalizeVendorID(vendorID)]
		if !ok {
			return 0
		}
		buckets = vendor
	}

	var sum float64
	var n int
	for bucket, stats := range buckets {
		if stats.Total < c.minSamples {
			continue
		}
		midpoint := float64(bucket) + 5
		if bucket == 100 {
			midpoint = 100
		}
		sum += math.Abs(midpoint - stats.accuracy()*100)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// NeedsRecalibration reports whether the observed calibration error exceeds
// the configured threshold.
func (c *Calibrator) NeedsRecalibration(vendorID string) bool {
	err := c.CalibrationError(vendorID)
	if err > c.recalThreshold {
		zap.L().Info("calibrate: recalibration recommended",
			zap.String("vendor", NormalizeVendorID(vendorID)),
			zap.Float64("calibration_error", err),
			zap.Float64("threshold", c.recalThreshold),
		)
		return true
	}
	return false
}

// SampleCount returns the number of recorded points, optionally scoped to a
// vendor.
func (c *Calibrator) SampleCount(vendorID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if vendorID == "" {
		return len(c.points)
	}
	id := NormalizeVendorID(vendorID)
	n := 0
	for _, p := range c.points {
		if p.VendorID == id {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all recorded points, ordered by field then
// vendor, for persistence.
func (c *Calibrator) Snapshot() []model.CalibrationDataPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.CalibrationDataPoint, len(c.points))
	copy(out, c.points)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FieldName != out[j].FieldName {
			return out[i].FieldName < out[j].FieldName
		}
		return out[i].VendorID < out[j].VendorID
	})
	return out
}

// Restore replaces the sample set with previously persisted points.
func (c *Calibrator) Restore(points []model.CalibrationDataPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.points = nil
	c.global = make(map[int]*bucketStats)
	c.byVendor = make(map[string]map[int]*bucketStats)
	for _, p := range points {
		c.record(p)
	}
}
