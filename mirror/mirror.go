// Package mirror hält die lokale, normalisierte Kopie einer entfernten Collection.
package mirror

import (
	"sync/atomic"

	"go.uber.org/zap"

	"paper-registry/models"
)

// generations ist über alle Mirrors des Prozesses eindeutig.
var generations atomic.Uint64

// Mirror ist die einzige Quelle für alle Ansichten eines Clients.
// Jeder Snapshot ersetzt den Inhalt vollständig.
type Mirror struct {
	logger     *zap.Logger
	records    []models.Record
	byID       map[string]int
	generation uint64
}

// New erstellt einen leeren Mirror.
func New(logger *zap.Logger) *Mirror {
	return &Mirror{logger: logger, byID: map[string]int{}}
}

// ApplySnapshot ersetzt den gesamten Inhalt durch die normalisierte Form von raw.
// Dokumente ohne ID werden verworfen; bei doppelter ID gewinnt der spätere Inhalt
// an der Position des ersten Auftretens.
func (m *Mirror) ApplySnapshot(raw []models.RawRecord) {
	records := make([]models.Record, 0, len(raw))
	byID := make(map[string]int, len(raw))
	for _, doc := range raw {
		rec := doc.Normalize()
		if rec.ID == "" {
			m.logger.Warn("Skipping document without id")
			continue
		}
		if idx, ok := byID[rec.ID]; ok {
			m.logger.Warn("Duplicate document id in snapshot", zap.String("record_id", rec.ID))
			records[idx] = rec
			continue
		}
		byID[rec.ID] = len(records)
		records = append(records, rec)
	}
	m.records = records
	m.byID = byID
	m.generation = generations.Add(1)
}

// All gibt alle Records in Feed-Reihenfolge zurück.
func (m *Mirror) All() []models.Record {
	out := make([]models.Record, len(m.records))
	copy(out, m.records)
	return out
}

// Get liefert den Record mit der gegebenen ID.
func (m *Mirror) Get(id string) (models.Record, bool) {
	idx, ok := m.byID[id]
	if !ok {
		return models.Record{}, false
	}
	return m.records[idx], true
}

// Len ist die Anzahl der Records.
func (m *Mirror) Len() int { return len(m.records) }

// Generation identifiziert den aktuellen Inhalt; sie wächst mit jedem Snapshot.
// 0 bedeutet: noch kein Snapshot.
func (m *Mirror) Generation() uint64 { return m.generation }
