package review

import (
	"fmt"

	"github.com/sells-group/billscan/internal/model"
)

// Confidence cut lines for validation flags, on the 0..100 scale.
const (
	hardFlagConfidence = 50
	softFlagConfidence = 70
)

// Validate checks extracted fields against the required-field list and the
// confidence cut lines. Any hard flag blocks approval regardless of count.
func Validate(fields []model.ExtractedField, required []string) model.ValidationResult {
	result := model.ValidationResult{}

	byName := make(map[string]model.ExtractedField, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	for _, name := range required {
		if f, ok := byName[name]; !ok || f.Value == "" {
			result.HardFlags = append(result.HardFlags, fmt.Sprintf("missing required field %s", name))
		}
	}

	for _, f := range fields {
		switch {
		case f.Confidence < hardFlagConfidence:
			result.HardFlags = append(result.HardFlags, fmt.Sprintf("field %s confidence %.0f below %d", f.Name, f.Confidence, hardFlagConfidence))
		case f.Confidence < softFlagConfidence:
			result.SoftFlags = append(result.SoftFlags, fmt.Sprintf("field %s confidence %.0f below %d", f.Name, f.Confidence, softFlagConfidence))
		}
	}

	result.CanApprove = len(result.HardFlags) == 0
	return result
}
