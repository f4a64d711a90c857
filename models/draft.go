package models

import (
	"errors"
	"fmt"
	"strings"
)

// Feldnamen eines Drafts, wie sie das Formular (und die Pflichtfeld-Konfiguration) verwendet.
const (
	DraftTitle            = "title"
	DraftAuthors          = "authors"
	DraftKind             = "kind"
	DraftVenueName        = "venueName"
	DraftPeriodKey        = "periodKey"
	DraftStatus           = "status"
	DraftDepartment       = "department"
	DraftDepartmentCustom = "departmentCustom"
	DraftIndexingLabel    = "indexingLabel"
	DraftQuartile         = "quartile"
	DraftPrimaryLink      = "primaryLink"
	DraftCertificateLink  = "certificateLink"
)

// DraftFieldNames listet alle setzbaren Draft-Felder.
var DraftFieldNames = []string{
	DraftTitle, DraftAuthors, DraftKind, DraftVenueName, DraftPeriodKey, DraftStatus,
	DraftDepartment, DraftDepartmentCustom, DraftIndexingLabel, DraftQuartile,
	DraftPrimaryLink, DraftCertificateLink,
}

// ErrUnknownField wird bei einem unbekannten Feldnamen zurückgegeben.
var ErrUnknownField = errors.New("unknown draft field")

// Draft hält die noch nicht gespeicherten Formularwerte.
type Draft struct {
	Title            string `json:"title"`
	Authors          string `json:"authors"`
	Kind             string `json:"kind"`
	VenueName        string `json:"venueName"`
	PeriodKey        string `json:"periodKey"`
	Status           string `json:"status"`
	Department       string `json:"department"`
	DepartmentCustom string `json:"departmentCustom,omitempty"`
	Indexing         string `json:"indexingLabel"`
	Quartile         string `json:"quartile,omitempty"`
	PrimaryLink      string `json:"primaryLink"`
	CertificateLink  string `json:"certificateLink"`
}

// BlankDraft ist der Startzustand beim Anlegen eines neuen Papers.
func BlankDraft() Draft {
	return Draft{Kind: string(KindJournal), Status: string(StatusPublished)}
}

// DraftFromRecord kopiert einen Record feldweise in einen Draft.
// Nicht gelistete Abteilungen landen im Freitextfeld.
func DraftFromRecord(r Record) Draft {
	d := Draft{
		Title:           r.Title,
		Authors:         r.AuthorsText(),
		Kind:            string(r.Kind),
		VenueName:       r.VenueName,
		PeriodKey:       r.PeriodKey,
		Status:          string(r.Status),
		Department:      r.Department,
		Indexing:        r.Indexing,
		Quartile:        r.Quartile,
		PrimaryLink:     r.PrimaryLink,
		CertificateLink: r.CertificateLink,
	}
	if r.Department != "" && !IsListedDepartment(r.Department) {
		d.Department = DepartmentOther
		d.DepartmentCustom = r.Department
	}
	return d
}

func (d *Draft) field(name string) (*string, error) {
	switch name {
	case DraftTitle:
		return &d.Title, nil
	case DraftAuthors:
		return &d.Authors, nil
	case DraftKind:
		return &d.Kind, nil
	case DraftVenueName:
		return &d.VenueName, nil
	case DraftPeriodKey:
		return &d.PeriodKey, nil
	case DraftStatus:
		return &d.Status, nil
	case DraftDepartment:
		return &d.Department, nil
	case DraftDepartmentCustom:
		return &d.DepartmentCustom, nil
	case DraftIndexingLabel:
		return &d.Indexing, nil
	case DraftQuartile:
		return &d.Quartile, nil
	case DraftPrimaryLink:
		return &d.PrimaryLink, nil
	case DraftCertificateLink:
		return &d.CertificateLink, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Set setzt ein Feld per Name.
func (d *Draft) Set(name, value string) error {
	f, err := d.field(name)
	if err != nil {
		return err
	}
	*f = value
	return nil
}

// Get liest ein Feld per Name. Unbekannte Namen liefern "".
func (d Draft) Get(name string) string {
	f, err := d.field(name)
	if err != nil {
		return ""
	}
	return *f
}

// ResolvedDepartment löst den "Other"-Ausweg in den Freitext auf.
func (d Draft) ResolvedDepartment() string {
	if d.Department == DepartmentOther {
		return strings.TrimSpace(d.DepartmentCustom)
	}
	return strings.TrimSpace(d.Department)
}

// Fields liefert die veränderbaren Dokumentfelder des Drafts.
// owner_identity wird nie aus einem Draft geschrieben.
func (d Draft) Fields() map[string]any {
	base := strings.TrimSpace(d.Indexing)
	return map[string]any{
		FieldTitle:           strings.TrimSpace(d.Title),
		FieldAuthors:         JoinAuthors(SplitAuthors(d.Authors)),
		FieldKind:            strings.TrimSpace(d.Kind),
		FieldVenueName:       strings.TrimSpace(d.VenueName),
		FieldPeriodKey:       strings.TrimSpace(d.PeriodKey),
		FieldStatus:          strings.TrimSpace(d.Status),
		FieldDepartment:      d.ResolvedDepartment(),
		FieldIndexing:        EncodeIndexing(base, d.Quartile),
		FieldPrimaryLink:     strings.TrimSpace(d.PrimaryLink),
		FieldCertificateLink: strings.TrimSpace(d.CertificateLink),
	}
}
