// Package export writes review queue snapshots to XLSX workbooks for
// spreadsheet-based auditing.
package export

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/billscan/internal/model"
)

var caseHeader = []string{
	"Case ID", "State", "Vendor", "Confidence", "Can Approve",
	"Hard Flags", "Soft Flags", "Reviewed By", "Created At", "Updated At",
}

var fieldHeader = []string{"Case ID", "Field", "Value", "Confidence", "Source"}

// WriteCasesXLSX writes the given cases to an XLSX workbook with two sheets:
// one row per case, and one row per extracted field.
func WriteCasesXLSX(path string, cases []model.ReviewCase) error {
	f := xlsx.NewFile()

	caseSheet, err := f.AddSheet("Review Queue")
	if err != nil {
		return eris.Wrap(err, "export: add queue sheet")
	}
	fieldSheet, err := f.AddSheet("Fields")
	if err != nil {
		return eris.Wrap(err, "export: add fields sheet")
	}

	addRow(caseSheet, caseHeader)
	addRow(fieldSheet, fieldHeader)

	for _, c := range cases {
		hard, soft := 0, 0
		canApprove := ""
		if c.Validation != nil {
			hard = len(c.Validation.HardFlags)
			soft = len(c.Validation.SoftFlags)
			canApprove = strconv.FormatBool(c.Validation.CanApprove)
		}
		addRow(caseSheet, []string{
			c.CaseID,
			string(c.State),
			c.VendorName,
			formatFloat(c.Confidence),
			canApprove,
			strconv.Itoa(hard),
			strconv.Itoa(soft),
			c.ReviewedBy,
			formatTime(c.CreatedAt),
			formatTime(c.UpdatedAt),
		})

		for _, field := range c.Fields {
			addRow(fieldSheet, []string{
				c.CaseID,
				field.Name,
				field.Value,
				formatFloat(field.Confidence),
				field.Source,
			})
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// WriteCalibrationXLSX writes calibration history, one row per sample.
func WriteCalibrationXLSX(path string, points []model.CalibrationDataPoint) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Calibration")
	if err != nil {
		return eris.Wrap(err, "export: add calibration sheet")
	}

	addRow(sheet, []string{"Vendor", "Field", "Predicted Confidence", "Correct"})
	for _, p := range points {
		addRow(sheet, []string{
			p.VendorID,
			p.FieldName,
			formatFloat(p.PredictedConfidence),
			strconv.FormatBool(p.ActualCorrect),
		})
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
