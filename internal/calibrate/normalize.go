package calibrate

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// legalSuffixes lists common legal entity suffixes stripped during vendor
// normalization so "Acme Supply LLC" and "ACME SUPPLY" share calibration
// history.
var legalSuffixes = []string{
	" LLC", " L.L.C.", " L.L.C",
	" INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION",
	" LTD", " LTD.", " LIMITED",
	" GMBH", " S.A.", " B.V.",
	" CO", " CO.",
	" PLC", " P.L.C.",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

var foldCaser = cases.Fold()

// NormalizeVendorID standardizes a vendor identifier for bucket lookup:
// Unicode case folding, legal-suffix stripping, punctuation removal, and
// whitespace collapsing.
func NormalizeVendorID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	id = strings.ToUpper(foldCaser.String(id))

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(id, suffix) {
			id = strings.TrimSuffix(id, suffix)
			break
		}
	}

	id = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
	).Replace(id)

	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(id, " "))
}
