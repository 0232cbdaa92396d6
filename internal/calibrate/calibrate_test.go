package calibrate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
)

func newTestCalibrator(minSamples int) *Calibrator {
	return New(config.CalibrationConfig{MinSamples: minSamples, RecalibrationThreshold: 5.0})
}

func recordN(c *Calibrator, confidence float64, vendor string, correct, incorrect int) {
	for i := 0; i < correct; i++ {
		c.Record(model.CalibrationDataPoint{PredictedConfidence: confidence, ActualCorrect: true, FieldName: "total_amount", VendorID: vendor})
	}
	for i := 0; i < incorrect; i++ {
		c.Record(model.CalibrationDataPoint{PredictedConfidence: confidence, ActualCorrect: false, FieldName: "total_amount", VendorID: vendor})
	}
}

func TestCalibrateConfidence_GlobalBucket(t *testing.T) {
	c := newTestCalibrator(5)
	recordN(c, 90, "", 8, 2)

	// 80% observed accuracy in the 90 bucket.
	assert.Equal(t, 80.0, c.CalibrateConfidence(90, ""))
	// 95 lands in the same decile bucket.
	assert.Equal(t, 80.0, c.CalibrateConfidence(95, ""))
}

func TestCalibrateConfidence_PassThroughBelowThreshold(t *testing.T) {
	c := newTestCalibrator(5)
	recordN(c, 90, "", 3, 1) // only 4 samples

	assert.Equal(t, 90.0, c.CalibrateConfidence(90, ""))
}

func TestCalibrateConfidence_VendorBucketWins(t *testing.T) {
	c := newTestCalibrator(5)
	recordN(c, 90, "", 10, 0)            // global says 100%
	recordN(c, 90, "Acme Supply", 5, 5)  // vendor says 50%

	assert.Equal(t, 50.0, c.CalibrateConfidence(90, "Acme Supply"))
	assert.Equal(t, 100.0, c.CalibrateConfidence(90, "Other Vendor"))
}

func TestCalibrateConfidence_VendorFallsBackToGlobal(t *testing.T) {
	c := newTestCalibrator(5)
	recordN(c, 90, "", 8, 2)
	recordN(c, 90, "Acme Supply", 2, 0) // vendor bucket too thin

	assert.Equal(t, 80.0, c.CalibrateConfidence(90, "Acme Supply"))
}

func TestCalibrateConfidence_OtherBucketUnaffected(t *testing.T) {
	c := newTestCalibrator(5)
	recordN(c, 90, "", 8, 2)

	// The 70 bucket has no data; pass through.
	assert.Equal(t, 72.0, c.CalibrateConfidence(72, ""))
}

func TestCalibrateConfidence_VendorNameNormalization(t *testing.T) {
	c := newTestCalibrator(5)
	recordN(c, 90, "Acme Supply, LLC", 5, 5)

	// Same vendor through a different spelling.
	assert.Equal(t, 50.0, c.CalibrateConfidence(90, "ACME SUPPLY"))
}

func TestNeedsRecalibration(t *testing.T) {
	c := newTestCalibrator(5)
	// 90 bucket midpoint 95 vs observed 50%: error 45, way past threshold.
	recordN(c, 90, "", 5, 5)
	assert.True(t, c.NeedsRecalibration(""))

	well := newTestCalibrator(5)
	// Observed accuracy 94%, midpoint 95: error 1, under 5.
	recordN(well, 90, "", 47, 3)
	assert.False(t, well.NeedsRecalibration(""))
}

func TestNeedsRecalibration_UnknownVendor(t *testing.T) {
	c := newTestCalibrator(5)
	assert.False(t, c.NeedsRecalibration("nobody"))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := newTestCalibrator(5)
	recordN(c, 90, "Acme", 8, 2)
	recordN(c, 70, "", 3, 3)

	points := c.Snapshot()
	assert.Len(t, points, 16)

	restored := newTestCalibrator(5)
	restored.Restore(points)
	assert.Equal(t, 80.0, restored.CalibrateConfidence(90, "Acme"))
	assert.Equal(t, c.SampleCount(""), restored.SampleCount(""))
}

func TestNormalizeVendorID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Supply, LLC", "ACME SUPPLY"},
		{"  acme   supply  ", "ACME SUPPLY"},
		{"Müller GmbH", "MÜLLER"},
		{"Smith & Jones Co.", "SMITH AND JONES"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeVendorID(tt.in), "input %q", tt.in)
	}
}
