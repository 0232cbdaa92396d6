package model

// OCRMode selects the segmentation strategy for a single OCR pass.
type OCRMode string

const (
	ModeFullPage      OCRMode = "full_page"
	ModeTableAnalysis OCRMode = "table_analysis"
	ModeSmallText     OCRMode = "small_text"
	ModeSingleColumn  OCRMode = "single_column"
)

// OCRPassConfig is the immutable configuration for one OCR pass.
type OCRPassConfig struct {
	Name     string          `json:"name"`
	Mode     OCRMode         `json:"mode"`
	PSM      int             `json:"psm"`
	Language string          `json:"language"`
	Region   *NormalizedBBox `json:"region,omitempty"`
	Weight   float64         `json:"weight"`
}

// OCRResult is the output of a single OCR pass.
type OCRResult struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	Engine           string  `json:"engine"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`
}

// MergeMetadata describes how a multi-pass merge went.
type MergeMetadata struct {
	TotalPasses       int     `json:"total_passes"`
	ConflictsFound    int     `json:"conflicts_found"`
	ConflictsResolved int     `json:"conflicts_resolved"`
	AverageAgreement  float64 `json:"average_agreement"`
}

// MultiPassOCRResult is the merged output of all passes over one image.
type MultiPassOCRResult struct {
	OCRResult
	Merge MergeMetadata `json:"merge"`
}

// ExtractedField is a single structured value pulled out of a document.
type ExtractedField struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ValidationResult summarizes field-level validation findings. CanApprove is
// false whenever any hard flag exists.
type ValidationResult struct {
	HardFlags  []string `json:"hard_flags"`
	SoftFlags  []string `json:"soft_flags"`
	CanApprove bool     `json:"can_approve"`
}

// CalibrationDataPoint is one observed prediction-vs-outcome sample.
// Accumulated append-only; never mutated, only aggregated.
type CalibrationDataPoint struct {
	PredictedConfidence float64 `json:"predicted_confidence"`
	ActualCorrect       bool    `json:"actual_correct"`
	FieldName           string  `json:"field_name"`
	VendorID            string  `json:"vendor_id,omitempty"`
}
