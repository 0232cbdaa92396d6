package shield

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billscan/internal/model"
)

func testShield(t model.ShieldType, bbox model.NormalizedBBox, source model.ShieldSource, conf float64) model.CleanupShield {
	return model.CleanupShield{
		Type:       t,
		BBox:       bbox,
		PageTarget: model.PageTarget{Mode: model.PagesAll},
		ApplyMode:  model.ApplyModeApplied,
		RiskLevel:  model.RiskLow,
		Confidence: conf,
		Provenance: model.ShieldProvenance{Source: source},
	}
}

func TestInsert_RejectsInvalidBBox(t *testing.T) {
	e := NewEngine()
	s := testShield(model.ShieldLogo, model.NormalizedBBox{X: 0.9, Y: 0, Width: 0.5, Height: 0.1}, model.SourceAutoDetected, 0.9)

	_, err := e.Insert(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidBBox)
	assert.Empty(t, e.Shields())
}

func TestInsert_CriticalZoneOverlapForcesSuggested(t *testing.T) {
	e := NewEngine()
	e.SetCriticalZones([]model.CriticalZone{
		{Name: model.ZoneTotals, BBox: model.NormalizedBBox{X: 0.5, Y: 0.7, Width: 0.5, Height: 0.2}},
	})

	// Shield half inside the totals zone: overlap well past 10%.
	s := testShield(model.ShieldStamp, model.NormalizedBBox{X: 0.6, Y: 0.72, Width: 0.2, Height: 0.1}, model.SourceVendorRule, 0.8)
	got, err := e.Insert(s)
	require.NoError(t, err)

	assert.Equal(t, model.ApplyModeSuggested, got.ApplyMode)
	assert.Contains(t, got.WhyDetected, "totals")
}

func TestInsert_SmallOverlapOnlyWarns(t *testing.T) {
	e := NewEngine()
	e.SetCriticalZones([]model.CriticalZone{
		{Name: model.ZoneHeader, BBox: model.NormalizedBBox{X: 0, Y: 0, Width: 1, Height: 0.1}},
	})

	// 6% of the shield's area overlaps the header: warn, do not force.
	s := testShield(model.ShieldWatermark, model.NormalizedBBox{X: 0.2, Y: 0.088, Width: 0.4, Height: 0.2}, model.SourceVendorRule, 0.8)
	got, err := e.Insert(s)
	require.NoError(t, err)

	assert.Equal(t, model.ApplyModeApplied, got.ApplyMode)
	assert.Contains(t, got.WhyDetected, "near header")
}

func TestInsert_DedupKeepsHigherProvenance(t *testing.T) {
	e := NewEngine()
	bbox := model.NormalizedBBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}

	auto, err := e.Insert(testShield(model.ShieldLogo, bbox, model.SourceAutoDetected, 0.95))
	require.NoError(t, err)

	// Nearly identical box from a template rule: IoU above 0.85.
	tmpl, err := e.Insert(testShield(model.ShieldLogo, model.NormalizedBBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.103}, model.SourceTemplateRule, 0.5))
	require.NoError(t, err)

	shields := e.Shields()
	require.Len(t, shields, 1)
	assert.Equal(t, tmpl.ID, shields[0].ID)
	assert.NotEqual(t, auto.ID, shields[0].ID)
	assert.Equal(t, model.SourceTemplateRule, shields[0].Provenance.Source)
}

func TestInsert_DedupTieBrokenByConfidence(t *testing.T) {
	e := NewEngine()
	bbox := model.NormalizedBBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}

	low, err := e.Insert(testShield(model.ShieldLogo, bbox, model.SourceVendorRule, 0.5))
	require.NoError(t, err)

	high, err := e.Insert(testShield(model.ShieldLogo, bbox, model.SourceVendorRule, 0.9))
	require.NoError(t, err)

	shields := e.Shields()
	require.Len(t, shields, 1)
	assert.Equal(t, high.ID, shields[0].ID)
	assert.NotEqual(t, low.ID, shields[0].ID)
}

func TestInsert_DedupLoserReturnsExisting(t *testing.T) {
	e := NewEngine()
	bbox := model.NormalizedBBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}

	kept, err := e.Insert(testShield(model.ShieldLogo, bbox, model.SourceSessionOverride, 0.9))
	require.NoError(t, err)

	got, err := e.Insert(testShield(model.ShieldLogo, bbox, model.SourceAutoDetected, 0.99))
	require.NoError(t, err)
	assert.Equal(t, kept.ID, got.ID)
	require.Len(t, e.Shields(), 1)
}

func TestInsert_DifferentTypesNeverDedup(t *testing.T) {
	e := NewEngine()
	bbox := model.NormalizedBBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}

	_, err := e.Insert(testShield(model.ShieldLogo, bbox, model.SourceVendorRule, 0.9))
	require.NoError(t, err)
	_, err = e.Insert(testShield(model.ShieldWatermark, bbox, model.SourceVendorRule, 0.9))
	require.NoError(t, err)

	assert.Len(t, e.Shields(), 2)
}

func TestSetApplyMode(t *testing.T) {
	clk := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine().WithClock(func() time.Time { return clk })

	s, err := e.Insert(testShield(model.ShieldLogo, model.NormalizedBBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}, model.SourceAutoDetected, 0.9))
	require.NoError(t, err)

	clk = clk.Add(time.Minute)
	require.NoError(t, e.SetApplyMode(s.ID, model.ApplyModeApplied))

	got, ok := e.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, model.ApplyModeApplied, got.ApplyMode)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	assert.Error(t, e.SetApplyMode("missing", model.ApplyModeDisabled))
}

func TestAppliedShields_FiltersSuggested(t *testing.T) {
	e := NewEngine()

	applied := testShield(model.ShieldLogo, model.NormalizedBBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.1}, model.SourceVendorRule, 0.9)
	suggested := testShield(model.ShieldStamp, model.NormalizedBBox{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.1}, model.SourceAutoDetected, 0.6)
	suggested.ApplyMode = model.ApplyModeSuggested

	_, err := e.Insert(applied)
	require.NoError(t, err)
	_, err = e.Insert(suggested)
	require.NoError(t, err)

	got := e.AppliedShields()
	require.Len(t, got, 1)
	assert.Equal(t, model.ShieldLogo, got[0].Type)
}

func TestDetectRepetitiveLines(t *testing.T) {
	pages := []string{
		"ACME SUPPLY CO\nitem one\nPage 1 of 4",
		"ACME SUPPLY CO\nitem two\nPage 2 of 4",
		"ACME SUPPLY CO\nitem three\nPage 3 of 4",
		"ACME SUPPLY CO\nitem four\nTotal: $41.00",
	}

	shields := DetectRepetitiveLines(pages)
	require.Len(t, shields, 1)
	assert.Equal(t, model.ShieldRepetitiveHeader, shields[0].Type)
	assert.Equal(t, model.ApplyModeSuggested, shields[0].ApplyMode)
	assert.Contains(t, shields[0].WhyDetected, "ACME SUPPLY CO")
}

func TestDetectRepetitiveLines_TooFewPages(t *testing.T) {
	assert.Nil(t, DetectRepetitiveLines([]string{"a\nb", "a\nb"}))
}
