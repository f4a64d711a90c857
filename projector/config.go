package projector

import "fmt"

// ScopeKind bestimmt die Sichtbarkeit vor allen Filtern.
type ScopeKind string

const (
	ScopeOwner ScopeKind = "owner"
	ScopeAll   ScopeKind = "all"
)

// Scope ist entweder Owner(identity) oder All.
type Scope struct {
	Kind     ScopeKind `json:"kind"`
	Identity string    `json:"identity,omitempty"`
}

// OwnerScope zeigt nur Records von identity.
func OwnerScope(identity string) Scope { return Scope{Kind: ScopeOwner, Identity: identity} }

// AllScope zeigt alle Records.
func AllScope() Scope { return Scope{Kind: ScopeAll} }

// SortKey ist das Sortierkriterium einer Ansicht.
type SortKey string

const (
	SortNone       SortKey = ""
	SortRecency    SortKey = "recency"
	SortTitle      SortKey = "title"
	SortStatus     SortKey = "status"
	SortDepartment SortKey = "department"
	SortIndexing   SortKey = "indexing"
)

// Valid meldet, ob k ein bekannter Sortierschlüssel ist.
func (k SortKey) Valid() bool {
	switch k {
	case SortNone, SortRecency, SortTitle, SortStatus, SortDepartment, SortIndexing:
		return true
	}
	return false
}

// Config ist die vollständige Konfiguration einer Ansicht.
// Leere Filterwerte (bzw. 0 bei Jahr/Monat) bedeuten "kein Filter".
type Config struct {
	Scope            Scope   `json:"scope"`
	SearchText       string  `json:"search_text"`
	StatusFilter     string  `json:"status_filter"`
	DepartmentFilter string  `json:"department_filter"`
	IndexingFilter   string  `json:"indexing_filter"`
	PeriodYear       int     `json:"period_year"`
	PeriodMonth      int     `json:"period_month"`
	SortKey          SortKey `json:"sort_key"`
	Dedupe           bool    `json:"dedupe"`
}

// OwnerView ist die Standardansicht eines Mitglieds.
func OwnerView(identity string) Config {
	return Config{Scope: OwnerScope(identity), SortKey: SortRecency}
}

// AdminView ist die Standardansicht "alle Records" eines Admins.
func AdminView() Config {
	return Config{Scope: AllScope(), Dedupe: true}
}

// Patch ist eine partielle Änderung einer Config; nil-Felder bleiben unverändert.
type Patch struct {
	Scope            *Scope   `json:"scope,omitempty"`
	SearchText       *string  `json:"search_text,omitempty"`
	StatusFilter     *string  `json:"status_filter,omitempty"`
	DepartmentFilter *string  `json:"department_filter,omitempty"`
	IndexingFilter   *string  `json:"indexing_filter,omitempty"`
	PeriodYear       *int     `json:"period_year,omitempty"`
	PeriodMonth      *int     `json:"period_month,omitempty"`
	SortKey          *SortKey `json:"sort_key,omitempty"`
	Dedupe           *bool    `json:"dedupe,omitempty"`
}

// Apply liefert eine neue Config mit den Änderungen aus p.
func (c Config) Apply(p Patch) (Config, error) {
	if p.Scope != nil {
		if p.Scope.Kind != ScopeOwner && p.Scope.Kind != ScopeAll {
			return c, fmt.Errorf("invalid scope %q", p.Scope.Kind)
		}
		c.Scope = *p.Scope
	}
	if p.SearchText != nil {
		c.SearchText = *p.SearchText
	}
	if p.StatusFilter != nil {
		c.StatusFilter = *p.StatusFilter
	}
	if p.DepartmentFilter != nil {
		c.DepartmentFilter = *p.DepartmentFilter
	}
	if p.IndexingFilter != nil {
		c.IndexingFilter = *p.IndexingFilter
	}
	if p.PeriodYear != nil {
		c.PeriodYear = *p.PeriodYear
	}
	if p.PeriodMonth != nil {
		if *p.PeriodMonth < 0 || *p.PeriodMonth > 12 {
			return c, fmt.Errorf("invalid period month %d", *p.PeriodMonth)
		}
		c.PeriodMonth = *p.PeriodMonth
	}
	if p.SortKey != nil {
		if !p.SortKey.Valid() {
			return c, fmt.Errorf("invalid sort key %q", *p.SortKey)
		}
		c.SortKey = *p.SortKey
	}
	if p.Dedupe != nil {
		c.Dedupe = *p.Dedupe
	}
	return c, nil
}

// key ist ein stabiler Cache-Schlüssel der Config.
func (c Config) key() string {
	return fmt.Sprintf("%s|%q|%q|%q|%q|%q|%d|%d|%s|%t",
		c.Scope.Kind, c.Scope.Identity, c.SearchText, c.StatusFilter, c.DepartmentFilter,
		c.IndexingFilter, c.PeriodYear, c.PeriodMonth, c.SortKey, c.Dedupe)
}
