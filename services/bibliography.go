package services

import (
	"fmt"
	"strings"

	"paper-registry/models"
)

// maxReferenceAuthors begrenzt die Autorenliste, danach folgt "et al."
const maxReferenceAuthors = 6

// FormatReference renders a record into a compact reference string
func FormatReference(r models.Record) string {
	authors := r.Authors
	etAl := false
	if len(authors) > maxReferenceAuthors {
		authors = authors[:maxReferenceAuthors]
		etAl = true
	}
	authorStr := strings.Join(authors, ", ")
	if authorStr == "" {
		authorStr = "Unknown Authors"
	} else if etAl {
		authorStr += " et al."
	}
	year := "n.d."
	if y, ok := r.PeriodYear(); ok {
		year = fmt.Sprintf("%d", y)
	}
	title := r.Title
	if title == "" {
		title = "Untitled"
	}

	var tail []string
	if r.Kind == models.KindConference && r.VenueName != "" {
		tail = append(tail, "In: "+r.VenueName)
	} else if r.VenueName != "" {
		tail = append(tail, r.VenueName)
	}
	if label := r.IndexingLabel(); label != "" {
		tail = append(tail, "["+label+"]")
	}
	if r.Status != "" && r.Status != models.StatusPublished {
		tail = append(tail, "("+string(r.Status)+")")
	}
	tailStr := strings.Join(tail, " ")
	if tailStr != "" {
		return fmt.Sprintf("%s (%s). %s. %s.", authorStr, year, title, tailStr)
	}
	return fmt.Sprintf("%s (%s). %s.", authorStr, year, title)
}
