package shield

import (
	"fmt"
	"image"
	"strings"

	"github.com/sells-group/billscan/internal/model"
)

// Auto-detection produces Suggested shields only; a human or a vendor rule
// promotes them to Applied.

// darkDensityThreshold is the fraction of dark pixels above which a corner
// region is treated as a probable logo or stamp.
const darkDensityThreshold = 0.18

// cornerRegions are the normalized page regions scanned for logo candidates.
var cornerRegions = []model.NormalizedBBox{
	{X: 0, Y: 0, Width: 0.25, Height: 0.12},            // top-left
	{X: 0.75, Y: 0, Width: 0.25, Height: 0.12},         // top-right
	{X: 0.70, Y: 0.85, Width: 0.30, Height: 0.15},      // bottom-right (stamps)
}

// DetectLogoCandidates scans page corners for dense dark regions and proposes
// logo/stamp shields. The density heuristic is crude on purpose: suggestions
// are cheap, and the critical-zone rules stop bad ones from being applied.
func DetectLogoCandidates(img image.Image) []model.CleanupShield {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil
	}

	var out []model.CleanupShield
	for i, region := range cornerRegions {
		density := darkDensity(img, region)
		if density < darkDensityThreshold {
			continue
		}
		st := model.ShieldLogo
		risk := model.RiskLow
		if i == 2 {
			st = model.ShieldStamp
			risk = model.RiskMedium
		}
		out = append(out, model.CleanupShield{
			Type:          st,
			BBox:          region,
			PageTarget:    model.PageTarget{Mode: model.PagesAll},
			ApplyMode:     model.ApplyModeSuggested,
			RiskLevel:     risk,
			Confidence:    density,
			MinConfidence: darkDensityThreshold,
			WhyDetected:   "dense dark region in page corner",
			Provenance:    model.ShieldProvenance{Source: model.SourceAutoDetected},
		})
	}
	return out
}

// darkDensity samples the region and returns the fraction of pixels darker
// than mid-gray.
func darkDensity(img image.Image, region model.NormalizedBBox) float64 {
	bounds := img.Bounds()
	x0 := bounds.Min.X + int(region.X*float64(bounds.Dx()))
	y0 := bounds.Min.Y + int(region.Y*float64(bounds.Dy()))
	x1 := bounds.Min.X + int((region.X+region.Width)*float64(bounds.Dx()))
	y1 := bounds.Min.Y + int((region.Y+region.Height)*float64(bounds.Dy()))

	const stride = 2 // sample every other pixel; density does not need precision
	var dark, total int
	for y := y0; y < y1; y += stride {
		for x := x0; x < x1; x += stride {
			r, g, b, _ := img.At(x, y).RGBA()
			lum := (299*r + 587*g + 114*b) / 1000
			if lum < 0x8000 {
				dark++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(dark) / float64(total)
}

// DetectRepetitiveLines looks for identical first/last text lines across pages
// and proposes header/footer shields. Requires at least three pages; with
// fewer, repetition is indistinguishable from coincidence.
func DetectRepetitiveLines(pageTexts []string) []model.CleanupShield {
	if len(pageTexts) < 3 {
		return nil
	}

	firstCounts := map[string]int{}
	lastCounts := map[string]int{}
	for _, text := range pageTexts {
		lines := nonEmptyLines(text)
		if len(lines) == 0 {
			continue
		}
		firstCounts[lines[0]]++
		lastCounts[lines[len(lines)-1]]++
	}

	var out []model.CleanupShield
	if line, n := mostFrequent(firstCounts); n >= 3 {
		out = append(out, repetitiveShield(model.ShieldRepetitiveHeader,
			model.NormalizedBBox{X: 0, Y: 0, Width: 1, Height: 0.08},
			line, n, len(pageTexts)))
	}
	if line, n := mostFrequent(lastCounts); n >= 3 {
		out = append(out, repetitiveShield(model.ShieldRepetitiveFooter,
			model.NormalizedBBox{X: 0, Y: 0.92, Width: 1, Height: 0.08},
			line, n, len(pageTexts)))
	}
	return out
}

func repetitiveShield(t model.ShieldType, bbox model.NormalizedBBox, line string, hits, pages int) model.CleanupShield {
	return model.CleanupShield{
		Type:        t,
		BBox:        bbox,
		PageTarget:  model.PageTarget{Mode: model.PagesAll},
		ApplyMode:   model.ApplyModeSuggested,
		RiskLevel:   model.RiskLow,
		Confidence:  float64(hits) / float64(pages),
		WhyDetected: fmt.Sprintf("line repeated on %d of %d pages: %s", hits, pages, truncate(line, 60)),
		Provenance:  model.ShieldProvenance{Source: model.SourceAutoDetected},
	}
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mostFrequent(counts map[string]int) (string, int) {
	var best string
	var n int
	for line, c := range counts {
		if c > n {
			best, n = line, c
		}
	}
	return best, n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
