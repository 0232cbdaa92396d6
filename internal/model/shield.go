package model

import "time"

// ShieldType classifies what a cleanup shield is masking.
type ShieldType string

const (
	ShieldLogo             ShieldType = "logo"
	ShieldWatermark        ShieldType = "watermark"
	ShieldRepetitiveHeader ShieldType = "repetitive_header"
	ShieldRepetitiveFooter ShieldType = "repetitive_footer"
	ShieldStamp            ShieldType = "stamp"
	ShieldUserDefined      ShieldType = "user_defined"
	ShieldVendorSpecific   ShieldType = "vendor_specific"
	ShieldTemplateSpecific ShieldType = "template_specific"
)

// ApplyMode controls whether a shield actually masks pixels or is only proposed.
type ApplyMode string

const (
	ApplyModeApplied   ApplyMode = "applied"
	ApplyModeSuggested ApplyMode = "suggested"
	ApplyModeDisabled  ApplyMode = "disabled"
)

// RiskLevel grades how dangerous applying a shield is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ShieldSource identifies where a shield came from. Higher values win when
// deduplicating conflicting shields.
type ShieldSource int

const (
	SourceAutoDetected ShieldSource = iota
	SourceVendorRule
	SourceTemplateRule
	SourceSessionOverride
)

// String returns the persisted name of the source.
func (s ShieldSource) String() string {
	switch s {
	case SourceAutoDetected:
		return "auto_detected"
	case SourceVendorRule:
		return "vendor_rule"
	case SourceTemplateRule:
		return "template_rule"
	case SourceSessionOverride:
		return "session_override"
	default:
		return "unknown"
	}
}

// PageTargetMode selects which pages of a document a shield applies to.
type PageTargetMode string

const (
	PagesAll      PageTargetMode = "all"
	PagesFirst    PageTargetMode = "first"
	PagesLast     PageTargetMode = "last"
	PagesSpecific PageTargetMode = "specific"
)

// PageTarget selects the pages a shield covers.
type PageTarget struct {
	Mode  PageTargetMode `json:"mode"`
	Pages []int          `json:"pages,omitempty"`
}

// ZoneTarget restricts a shield to named zones, or excludes it from them.
type ZoneTarget struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// ShieldProvenance records how a shield came to exist.
type ShieldProvenance struct {
	Source    ShieldSource `json:"source"`
	RuleID    string       `json:"rule_id,omitempty"`
	CreatedBy string       `json:"created_by,omitempty"`
}

// CleanupShield is a region marked for masking before OCR. Immutable after
// creation except for ApplyMode and UpdatedAt.
type CleanupShield struct {
	ID            string           `json:"id"`
	Type          ShieldType       `json:"shield_type"`
	BBox          NormalizedBBox   `json:"bbox"`
	PageTarget    PageTarget       `json:"page_target"`
	ZoneTarget    ZoneTarget       `json:"zone_target"`
	ApplyMode     ApplyMode        `json:"apply_mode"`
	RiskLevel     RiskLevel        `json:"risk_level"`
	Confidence    float64          `json:"confidence"`
	MinConfidence float64          `json:"min_confidence"`
	WhyDetected   string           `json:"why_detected"`
	Provenance    ShieldProvenance `json:"provenance"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// CriticalZone is a named page region whose content must never be silently
// redacted by a shield.
type CriticalZone struct {
	Name CriticalZoneName `json:"name"`
	BBox NormalizedBBox   `json:"bbox"`
}

// CriticalZoneName enumerates the zones the extraction layer cares about.
type CriticalZoneName string

const (
	ZoneLineItems CriticalZoneName = "line_items"
	ZoneTotals    CriticalZoneName = "totals"
	ZoneHeader    CriticalZoneName = "header"
	ZoneFooter    CriticalZoneName = "footer"
	ZoneBarcode   CriticalZoneName = "barcode"
	ZoneLogo      CriticalZoneName = "logo"
)
