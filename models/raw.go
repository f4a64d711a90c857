package models

import (
	"fmt"
	"strings"
)

// Feldnamen im Dokument-Store (flache Field-Map pro Dokument).
const (
	FieldTitle           = "title"
	FieldAuthors         = "authors"
	FieldKind            = "kind"
	FieldVenueName       = "venue_name"
	FieldPeriodKey       = "period_key"
	FieldStatus          = "status"
	FieldDepartment      = "department"
	FieldIndexing        = "indexing"
	FieldPrimaryLink     = "primary_link"
	FieldCertificateLink = "certificate_link"
	FieldOwnerIdentity   = "owner_identity"
)

// RawRecord ist ein Dokument, wie es der Change-Feed liefert.
type RawRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Normalize wandelt ein Roh-Dokument in einen kanonischen Record.
// Fehlende optionale Felder werden zu leeren Werten, das Indexing-Composite
// wird in Basislabel und Quartil zerlegt.
func (r RawRecord) Normalize() Record {
	get := func(key string) string {
		return strings.TrimSpace(coerceString(r.Fields[key]))
	}
	base, quartile := DecodeIndexing(get(FieldIndexing))
	return Record{
		ID:              strings.TrimSpace(r.ID),
		Title:           get(FieldTitle),
		Authors:         coerceAuthors(r.Fields[FieldAuthors]),
		Kind:            Kind(get(FieldKind)),
		VenueName:       get(FieldVenueName),
		PeriodKey:       get(FieldPeriodKey),
		Status:          Status(get(FieldStatus)),
		Department:      get(FieldDepartment),
		Indexing:        base,
		Quartile:        quartile,
		PrimaryLink:     get(FieldPrimaryLink),
		CertificateLink: get(FieldCertificateLink),
		OwnerIdentity:   get(FieldOwnerIdentity),
	}
}

// Fields ist die Umkehrung von Normalize.
func (r Record) Fields() map[string]any {
	return map[string]any{
		FieldTitle:           r.Title,
		FieldAuthors:         r.AuthorsText(),
		FieldKind:            string(r.Kind),
		FieldVenueName:       r.VenueName,
		FieldPeriodKey:       r.PeriodKey,
		FieldStatus:          string(r.Status),
		FieldDepartment:      r.Department,
		FieldIndexing:        r.IndexingLabel(),
		FieldPrimaryLink:     r.PrimaryLink,
		FieldCertificateLink: r.CertificateLink,
		FieldOwnerIdentity:   r.OwnerIdentity,
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func coerceAuthors(v any) []string {
	switch t := v.(type) {
	case []string:
		return SplitAuthors(strings.Join(t, ","))
	case []any:
		parts := make([]string, 0, len(t))
		for _, a := range t {
			parts = append(parts, coerceString(a))
		}
		return SplitAuthors(strings.Join(parts, ","))
	default:
		return SplitAuthors(coerceString(v))
	}
}
