package models

import (
	"strconv"
	"strings"
)

// Kind unterscheidet Journal- und Konferenzbeiträge.
type Kind string

const (
	KindJournal    Kind = "Journal"
	KindConference Kind = "Conference"
)

// Valid meldet, ob k ein bekannter Wert ist.
func (k Kind) Valid() bool {
	return k == KindJournal || k == KindConference
}

// Status ist der Veröffentlichungsstatus eines Papers.
type Status string

const (
	StatusPublished Status = "Published"
	StatusInReview  Status = "In Review"
	StatusAccepted  Status = "Accepted"
)

// Valid meldet, ob s ein bekannter Wert ist.
func (s Status) Valid() bool {
	switch s {
	case StatusPublished, StatusInReview, StatusAccepted:
		return true
	}
	return false
}

// DepartmentOther ist der Ausweg für frei eingegebene Abteilungen.
const DepartmentOther = "Other"

// Departments ist die feste Auswahlliste im Formular.
var Departments = []string{
	"Computer Science and Engineering",
	"Information Science and Engineering",
	"Electronics and Communication Engineering",
	"Electrical and Electronics Engineering",
	"Mechanical Engineering",
	"Civil Engineering",
	"Mathematics",
	"Physics",
	"Chemistry",
	DepartmentOther,
}

// IsListedDepartment meldet, ob dept Teil der festen Auswahlliste ist.
func IsListedDepartment(dept string) bool {
	for _, d := range Departments {
		if d == dept {
			return true
		}
	}
	return false
}

// Record ist die kanonische, normalisierte Form eines Papers im Mirror.
type Record struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Kind            Kind     `json:"kind"`
	VenueName       string   `json:"venue_name"`
	PeriodKey       string   `json:"period_key"` // YYYY-MM
	Status          Status   `json:"status"`
	Department      string   `json:"department"`
	Indexing        string   `json:"indexing"`
	Quartile        string   `json:"quartile,omitempty"`
	PrimaryLink     string   `json:"primary_link"`
	CertificateLink string   `json:"certificate_link"`
	OwnerIdentity   string   `json:"owner_identity"`
}

// IndexingLabel gibt das Indexing als Composite zurück, z.B. "Scopus (Q1)".
func (r Record) IndexingLabel() string {
	return EncodeIndexing(r.Indexing, r.Quartile)
}

// AuthorsText gibt die Autoren so zurück, wie sie im Dokument stehen.
func (r Record) AuthorsText() string {
	return JoinAuthors(r.Authors)
}

// PeriodYear liefert das Jahr aus PeriodKey.
func (r Record) PeriodYear() (int, bool) {
	y, _, ok := ParsePeriod(r.PeriodKey)
	return y, ok
}

// PeriodMonth liefert den Monat (1-12) aus PeriodKey.
func (r Record) PeriodMonth() (int, bool) {
	_, m, ok := ParsePeriod(r.PeriodKey)
	return m, ok
}

// ParsePeriod zerlegt einen "YYYY-MM"-Schlüssel.
func ParsePeriod(key string) (year, month int, ok bool) {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(parts[0])
	if err != nil || y <= 0 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 1 || m > 12 {
		return 0, 0, false
	}
	return y, m, true
}

// SplitAuthors zerlegt das kommagetrennte Autorenfeld in eine geordnete Liste.
func SplitAuthors(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinAuthors ist die Umkehrung von SplitAuthors.
func JoinAuthors(authors []string) string {
	return strings.Join(authors, ", ")
}
