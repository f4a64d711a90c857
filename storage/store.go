package storage

import (
	"context"
	"errors"

	"paper-registry/models"
)

var (
	// ErrStore ist die Oberkategorie aller Schreib- und Lesefehler des Dokument-Stores.
	ErrStore = errors.New("document store error")
	// ErrNotFound: das Dokument existiert (nicht mehr).
	ErrNotFound = &storeError{msg: "document not found"}
	// ErrSubscriptionDenied: der Feed für eine Collection kann nicht aufgebaut werden.
	ErrSubscriptionDenied = &storeError{msg: "subscription denied"}
)

type storeError struct{ msg string }

func (e *storeError) Error() string { return e.msg }

// Is sorgt dafür, dass errors.Is(ErrNotFound, ErrStore) gilt.
func (e *storeError) Is(target error) bool { return target == ErrStore }

// Unsubscribe beendet eine Feed-Subscription. Mehrfache Aufrufe sind erlaubt.
type Unsubscribe func()

// SnapshotFunc empfängt den vollständigen Inhalt einer Collection.
type SnapshotFunc func(docs []models.RawRecord)

// DocumentStore ist der entfernte Dokument-Store mit Push-Feed.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// Subscribe liefert sofort einen Snapshot und danach einen pro Änderung.
	Subscribe(collection string, onSnapshot SnapshotFunc) (Unsubscribe, error)
}

// writableFields filtert eine Field-Map auf die erlaubten Spalten.
func writableFields(fields map[string]any, allowOwner bool) map[string]any {
	out := make(map[string]any, len(fields))
	for _, col := range models.DocumentColumns {
		if col == models.FieldOwnerIdentity && !allowOwner {
			continue
		}
		if v, ok := fields[col]; ok {
			out[col] = v
		}
	}
	return out
}
