package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/billscan/internal/model"
)

func exportedCases() []model.ReviewCase {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return []model.ReviewCase{
		{
			CaseID:     "c1",
			State:      model.StatePending,
			VendorName: "Acme Supply Co.",
			Confidence: 92.5,
			Validation: &model.ValidationResult{CanApprove: true},
			Fields: []model.ExtractedField{
				{Name: "invoice_number", Value: "INV-1", Confidence: 95, Source: "multipass"},
				{Name: "total_amount", Value: "108.25", Confidence: 90, Source: "multipass"},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			CaseID:     "c2",
			State:      model.StateRejected,
			VendorName: "Globex",
			Confidence: 41,
			Validation: &model.ValidationResult{HardFlags: []string{"missing required field total_amount"}},
			ReviewedBy: "reviewer1",
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
}

func TestWriteCasesXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.xlsx")
	require.NoError(t, WriteCasesXLSX(path, exportedCases()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	queue := f.Sheets[0]
	assert.Equal(t, "Review Queue", queue.Name)
	require.Len(t, queue.Rows, 3)
	assert.Equal(t, "Case ID", queue.Rows[0].Cells[0].String())
	assert.Equal(t, "c1", queue.Rows[1].Cells[0].String())
	assert.Equal(t, "pending", queue.Rows[1].Cells[1].String())
	assert.Equal(t, "92.50", queue.Rows[1].Cells[3].String())
	assert.Equal(t, "true", queue.Rows[1].Cells[4].String())
	assert.Equal(t, "reviewer1", queue.Rows[2].Cells[7].String())
	assert.Equal(t, "1", queue.Rows[2].Cells[5].String())

	fields := f.Sheets[1]
	assert.Equal(t, "Fields", fields.Name)
	require.Len(t, fields.Rows, 3) // header + two c1 fields
	assert.Equal(t, "invoice_number", fields.Rows[1].Cells[1].String())
	assert.Equal(t, "108.25", fields.Rows[2].Cells[2].String())
}

func TestWriteCasesXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteCasesXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 1) // header only
}

func TestWriteCalibrationXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.xlsx")
	points := []model.CalibrationDataPoint{
		{PredictedConfidence: 90, ActualCorrect: true, FieldName: "total_amount", VendorID: "ACME"},
		{PredictedConfidence: 55, ActualCorrect: false, FieldName: "tax", VendorID: "GLOBEX"},
	}
	require.NoError(t, WriteCalibrationXLSX(path, points))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	rows := f.Sheets[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "ACME", rows[1].Cells[0].String())
	assert.Equal(t, "false", rows[2].Cells[3].String())
}
