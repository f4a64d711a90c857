// Package projector leitet aus dem Mirror die sichtbaren, gefilterten und
// sortierten Ansichten ab. Alle Funktionen sind rein und deterministisch.
package projector

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"paper-registry/models"
)

// Project wendet cfg auf records an, in dieser Reihenfolge:
// Dedupe, Scope, Suchtext und Feldfilter, stabile Sortierung.
// records wird nicht verändert.
func Project(records []models.Record, cfg Config) []models.Record {
	out := scoped(records, cfg)
	out = filter(out, cfg)
	sortRecords(out, cfg.SortKey)
	return out
}

// Choices sind die aktuell vorhandenen Werte für die Filter-Auswahl.
type Choices struct {
	Statuses    []string `json:"statuses"`
	Departments []string `json:"departments"`
	Indexing    []string `json:"indexing"`
}

// FilterChoices sammelt die unterschiedlichen Werte nach Scope, aber vor dem Textfilter.
// Die Reihenfolge entspricht dem ersten Auftreten im Mirror.
func FilterChoices(records []models.Record, cfg Config) Choices {
	var c Choices
	seenStatus, seenDept, seenIdx := map[string]bool{}, map[string]bool{}, map[string]bool{}
	add := func(list *[]string, seen map[string]bool, v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		*list = append(*list, v)
	}
	for _, r := range scoped(records, cfg) {
		add(&c.Statuses, seenStatus, string(r.Status))
		add(&c.Departments, seenDept, r.Department)
		add(&c.Indexing, seenIdx, r.IndexingLabel())
	}
	return c
}

func scoped(records []models.Record, cfg Config) []models.Record {
	out := make([]models.Record, 0, len(records))
	var seen map[string]bool
	if cfg.Dedupe {
		seen = make(map[string]bool, len(records))
	}
	for _, r := range records {
		if cfg.Dedupe {
			// erster Record pro normalisiertem Titel gewinnt
			key := models.NormalizeTitle(r.Title)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		if cfg.Scope.Kind == ScopeOwner && r.OwnerIdentity != cfg.Scope.Identity {
			continue
		}
		out = append(out, r)
	}
	return out
}

func filter(records []models.Record, cfg Config) []models.Record {
	query := fold(strings.TrimSpace(cfg.SearchText))
	out := records[:0]
	for _, r := range records {
		if query != "" && !matchesSearch(r, query, cfg.Scope.Kind == ScopeAll) {
			continue
		}
		if cfg.StatusFilter != "" && string(r.Status) != cfg.StatusFilter {
			continue
		}
		if cfg.DepartmentFilter != "" && r.Department != cfg.DepartmentFilter {
			continue
		}
		if cfg.IndexingFilter != "" && r.IndexingLabel() != cfg.IndexingFilter {
			continue
		}
		if cfg.PeriodYear != 0 {
			if y, ok := r.PeriodYear(); !ok || y != cfg.PeriodYear {
				continue
			}
		}
		if cfg.PeriodMonth != 0 {
			if m, ok := r.PeriodMonth(); !ok || m != cfg.PeriodMonth {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(r models.Record, query string, withAuthors bool) bool {
	if strings.Contains(fold(r.Title), query) {
		return true
	}
	return withAuthors && strings.Contains(fold(r.AuthorsText()), query)
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// sortRecords sortiert stabil. Leere Werte gelten als lexikalisch kleinste.
func sortRecords(records []models.Record, key SortKey) {
	var less func(a, b models.Record) bool
	switch key {
	case SortRecency:
		less = func(a, b models.Record) bool { return a.PeriodKey > b.PeriodKey }
	case SortTitle:
		less = func(a, b models.Record) bool { return a.Title < b.Title }
	case SortStatus:
		less = func(a, b models.Record) bool { return a.Status < b.Status }
	case SortDepartment:
		less = func(a, b models.Record) bool { return a.Department < b.Department }
	case SortIndexing:
		less = func(a, b models.Record) bool { return a.IndexingLabel() < b.IndexingLabel() }
	default:
		return
	}
	sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j]) })
}
