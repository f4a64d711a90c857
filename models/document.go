package models

import "time"

// PaperDocument ist die Tabellenzeile einer Paper-Collection im Dokument-Store.
type PaperDocument struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	Title           string `json:"title" gorm:"not null;default:''"`
	Authors         string `json:"authors" gorm:"type:text;default:''"`
	Kind            string `json:"kind" gorm:"default:''"`
	VenueName       string `json:"venue_name" gorm:"default:''"`
	PeriodKey       string `json:"period_key" gorm:"size:7;index;default:''"`
	Status          string `json:"status" gorm:"index;default:''"`
	Department      string `json:"department" gorm:"index;default:''"`
	Indexing        string `json:"indexing" gorm:"index;default:''"`
	PrimaryLink     string `json:"primary_link" gorm:"type:text;default:''"`
	CertificateLink string `json:"certificate_link" gorm:"type:text;default:''"`
	OwnerIdentity   string `json:"owner_identity" gorm:"index;not null;default:''"`
}

// TableName gibt explizit den Standard-Tabellennamen an.
func (PaperDocument) TableName() string {
	return "papers"
}

// DocumentColumns sind die Spalten, die über eine Field-Map geschrieben werden dürfen.
var DocumentColumns = []string{
	FieldTitle, FieldAuthors, FieldKind, FieldVenueName, FieldPeriodKey, FieldStatus,
	FieldDepartment, FieldIndexing, FieldPrimaryLink, FieldCertificateLink, FieldOwnerIdentity,
}

// Raw wandelt die Zeile in ein Feed-Dokument.
func (d PaperDocument) Raw() RawRecord {
	return RawRecord{
		ID: d.ID,
		Fields: map[string]any{
			FieldTitle:           d.Title,
			FieldAuthors:         d.Authors,
			FieldKind:            d.Kind,
			FieldVenueName:       d.VenueName,
			FieldPeriodKey:       d.PeriodKey,
			FieldStatus:          d.Status,
			FieldDepartment:      d.Department,
			FieldIndexing:        d.Indexing,
			FieldPrimaryLink:     d.PrimaryLink,
			FieldCertificateLink: d.CertificateLink,
			FieldOwnerIdentity:   d.OwnerIdentity,
		},
	}
}

// DocumentFromFields baut eine Zeile aus einer Field-Map. Unbekannte Keys werden ignoriert.
func DocumentFromFields(id string, fields map[string]any) PaperDocument {
	get := func(key string) string { return coerceString(fields[key]) }
	return PaperDocument{
		ID:              id,
		Title:           get(FieldTitle),
		Authors:         get(FieldAuthors),
		Kind:            get(FieldKind),
		VenueName:       get(FieldVenueName),
		PeriodKey:       get(FieldPeriodKey),
		Status:          get(FieldStatus),
		Department:      get(FieldDepartment),
		Indexing:        get(FieldIndexing),
		PrimaryLink:     get(FieldPrimaryLink),
		CertificateLink: get(FieldCertificateLink),
		OwnerIdentity:   get(FieldOwnerIdentity),
	}
}
