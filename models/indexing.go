package models

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// IndexingScopus ist das einzige Label, das ein Quartil tragen darf.
const IndexingScopus = "Scopus"

// Quartiles sind die erlaubten Quartil-Werte für Scopus.
var Quartiles = []string{"Q1", "Q2", "Q3", "Q4"}

// akzeptiert "Scopus (Q1)", "Scopus - Q1", "Scopus Q1"
var scopusComposite = regexp.MustCompile(`(?i)^scopus\s*(?:\(\s*(q[1-4])\s*\)|[-–]\s*(q[1-4])|\s+(q[1-4]))$`)

// IsQuartile meldet, ob q ein gültiges Quartil ist.
func IsQuartile(q string) bool {
	for _, v := range Quartiles {
		if v == q {
			return true
		}
	}
	return false
}

// IsScopus meldet, ob base das Scopus-Label ist, unabhängig von Groß- und Kleinschreibung.
func IsScopus(base string) bool {
	return strings.EqualFold(strings.TrimSpace(base), IndexingScopus)
}

// EncodeIndexing baut das Composite aus Basislabel und Quartil.
// Scopus wird kanonisch geschrieben; für alle anderen Labels wird das Quartil verworfen.
func EncodeIndexing(base, quartile string) string {
	base = strings.TrimSpace(base)
	if !IsScopus(base) {
		return base
	}
	quartile = strings.ToUpper(strings.TrimSpace(quartile))
	if quartile == "" {
		return IndexingScopus
	}
	return IndexingScopus + " (" + quartile + ")"
}

// DecodeIndexing zerlegt ein Composite wieder in Basislabel und Quartil.
func DecodeIndexing(label string) (base, quartile string) {
	label = strings.TrimSpace(label)
	m := scopusComposite.FindStringSubmatch(label)
	if m == nil {
		if IsScopus(label) {
			return IndexingScopus, ""
		}
		return label, ""
	}
	for _, g := range m[1:] {
		if g != "" {
			quartile = strings.ToUpper(g)
		}
	}
	return IndexingScopus, quartile
}

// NormalizeTitle liefert den Dedup-Schlüssel eines Titels:
// getrimmt, Whitespace auf ein Leerzeichen reduziert, case-folded.
func NormalizeTitle(title string) string {
	collapsed := strings.Join(strings.Fields(norm.NFC.String(title)), " ")
	return cases.Fold().String(collapsed)
}
