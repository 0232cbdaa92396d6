package pipeline

import (
	"regexp"
	"strings"

	"github.com/sells-group/billscan/internal/model"
)

// fieldPattern binds a field name to the regexes that locate it in OCR text
// and a confidence penalty applied when only a fallback pattern matched.
type fieldPattern struct {
	name     string
	patterns []*regexp.Regexp
	// penalty per pattern index: the first pattern is the strongest cue,
	// later ones are progressively weaker.
	penalties []float64
}

var fieldPatterns = []fieldPattern{
	{
		name: "invoice_number",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)invoice\s*(?:number|no\.?|#)\s*:?\s*([A-Z0-9][A-Z0-9-]{1,24})`),
			regexp.MustCompile(`(?i)\binv\.?\s*#?\s*:?\s*([A-Z0-9][A-Z0-9-]{1,24})`),
		},
		penalties: []float64{0, 10},
	},
	{
		name: "invoice_date",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:invoice\s+)?date\s*:?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
			regexp.MustCompile(`(?i)(?:invoice\s+)?date\s*:?\s*(\d{4}-\d{2}-\d{2})`),
			regexp.MustCompile(`(?i)date\s*:?\s*([A-Z][a-z]+\.?\s+\d{1,2},?\s+\d{4})`),
		},
		penalties: []float64{0, 0, 5},
	},
	{
		name: "total_amount",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:amount\s+due|total\s+due|grand\s+total|balance\s+due)\s*:?\s*\$?\s*([\d,]+\.\d{2})`),
			regexp.MustCompile(`(?i)\btotal\s*:?\s*\$?\s*([\d,]+\.\d{2})`),
		},
		penalties: []float64{0, 5},
	},
	{
		name: "subtotal",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)sub\s*-?\s*total\s*:?\s*\$?\s*([\d,]+\.\d{2})`),
		},
		penalties: []float64{0},
	},
	{
		name: "tax",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:sales\s+)?tax(?:\s*\([\d.]+%\))?\s*:?\s*\$?\s*([\d,]+\.\d{2})`),
		},
		penalties: []float64{0},
	},
	{
		name: "purchase_order",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:purchase\s+order|p\.?o\.?)\s*(?:number|no\.?|#)?\s*:?\s*([A-Z0-9][A-Z0-9-]{1,24})`),
		},
		penalties: []float64{0},
	},
}

// vendorLine matches a plausible company name: starts with a capital and ends
// with a legal suffix. Applied line by line near the top of the document.
var vendorLine = regexp.MustCompile(`^([A-Z][A-Za-z0-9&',.\- ]{2,60}(?:Inc\.?|LLC|L\.L\.C\.|Ltd\.?|Corp\.?|Co\.?|Company|GmbH))\s*$`)

// ExtractFields pulls structured invoice fields out of merged OCR text.
// Each field inherits the OCR confidence (0..100) minus a per-pattern penalty
// for weaker cues; fields that never match are simply absent from the result.
func ExtractFields(text string, ocrConfidence float64) []model.ExtractedField {
	var fields []model.ExtractedField

	for _, fp := range fieldPatterns {
		for i, re := range fp.patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			conf := ocrConfidence - fp.penalties[i]
			if conf < 0 {
				conf = 0
			}
			fields = append(fields, model.ExtractedField{
				Name:       fp.name,
				Value:      strings.TrimSpace(m[1]),
				Confidence: conf,
				Source:     "multipass",
			})
			break
		}
	}

	if vendor := extractVendorName(text); vendor != "" {
		// Line-position heuristics are weaker than labeled fields.
		conf := ocrConfidence - 15
		if conf < 0 {
			conf = 0
		}
		fields = append(fields, model.ExtractedField{
			Name:       "vendor_name",
			Value:      vendor,
			Confidence: conf,
			Source:     "multipass",
		})
	}

	return fields
}

// extractVendorName scans the first few lines for a company-shaped string;
// invoice letterheads put the vendor at the top of the page.
func extractVendorName(text string) string {
	lines := strings.Split(text, "\n")
	limit := min(len(lines), 8)
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if m := vendorLine.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// FieldConfidences maps field names to confidences for early-stop checks.
func FieldConfidences(fields []model.ExtractedField) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Confidence
	}
	return out
}
