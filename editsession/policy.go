package editsession

import (
	"fmt"
	"net/url"
	"strings"

	"paper-registry/models"
)

// ValidationError beschreibt ein fehlendes oder ungültiges Feld.
// Es wird lokal behandelt und erreicht nie den Store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BaseRequired sind immer Pflicht und lassen sich nicht abwählen.
var BaseRequired = []string{
	models.DraftTitle, models.DraftAuthors, models.DraftPeriodKey,
	models.DraftDepartment, models.DraftIndexingLabel,
}

// Policy legt fest, welche Draft-Felder vor dem Speichern gesetzt sein müssen.
type Policy struct {
	required []string
}

// NewPolicy baut eine Policy aus BaseRequired und den zusätzlichen
// Pflichtfeldern extra (z.B. "primaryLink").
func NewPolicy(extra []string) (Policy, error) {
	p := Policy{required: append([]string(nil), BaseRequired...)}
	seen := map[string]bool{}
	for _, name := range BaseRequired {
		seen[name] = true
	}
	for _, name := range extra {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		if !isDraftField(name) {
			return Policy{}, fmt.Errorf("%w: %q", models.ErrUnknownField, name)
		}
		seen[name] = true
		p.required = append(p.required, name)
	}
	return p, nil
}

// Required gibt die Pflichtfelder zurück, BaseRequired zuerst.
func (p Policy) Required() []string {
	return append([]string(nil), p.required...)
}

func isDraftField(name string) bool {
	for _, f := range models.DraftFieldNames {
		if f == name {
			return true
		}
	}
	return false
}

// Validate prüft d. Der erste Fehler wird als *ValidationError zurückgegeben.
func (p Policy) Validate(d models.Draft) error {
	for _, name := range p.required {
		if value(d, name) == "" {
			return &ValidationError{Field: name, Message: "is required"}
		}
	}

	// Scopus braucht immer ein Quartil, unabhängig von der Konfiguration.
	if models.IsScopus(d.Indexing) {
		q := strings.ToUpper(strings.TrimSpace(d.Quartile))
		if q == "" {
			return &ValidationError{Field: models.DraftQuartile, Message: "is required for Scopus"}
		}
		if !models.IsQuartile(q) {
			return &ValidationError{Field: models.DraftQuartile, Message: fmt.Sprintf("must be one of %s", strings.Join(models.Quartiles, ", "))}
		}
	}

	if k := strings.TrimSpace(d.Kind); k != "" && !models.Kind(k).Valid() {
		return &ValidationError{Field: models.DraftKind, Message: fmt.Sprintf("unknown kind %q", k)}
	}
	if s := strings.TrimSpace(d.Status); s != "" && !models.Status(s).Valid() {
		return &ValidationError{Field: models.DraftStatus, Message: fmt.Sprintf("unknown status %q", s)}
	}
	if pk := strings.TrimSpace(d.PeriodKey); pk != "" {
		if _, _, ok := models.ParsePeriod(pk); !ok {
			return &ValidationError{Field: models.DraftPeriodKey, Message: "must have the form YYYY-MM"}
		}
	}
	for _, f := range []string{models.DraftPrimaryLink, models.DraftCertificateLink} {
		if link := value(d, f); link != "" && !isHTTPURL(link) {
			return &ValidationError{Field: f, Message: "must be an http(s) URL"}
		}
	}
	return nil
}

// value liest ein Feld getrimmt; Abteilung und Autoren in ihrer aufgelösten Form.
func value(d models.Draft, name string) string {
	switch name {
	case models.DraftDepartment:
		return d.ResolvedDepartment()
	case models.DraftAuthors:
		return models.JoinAuthors(models.SplitAuthors(d.Authors))
	}
	return strings.TrimSpace(d.Get(name))
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
