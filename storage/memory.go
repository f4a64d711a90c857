package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"paper-registry/models"
)

// Compile-time check gegen das Store-Interface.
var _ DocumentStore = (*MemoryStore)(nil)

// MemoryStore ist ein In-Memory-Dokument-Store mit synchronem Feed.
// Er verhält sich wie GormStore und wird in Tests und lokal verwendet.
type MemoryStore struct {
	mu          sync.Mutex
	deliverMu   sync.Mutex
	collections map[string]*memCollection
	subs        map[string]map[int]SnapshotFunc
	nextSub     int
	denied      map[string]bool
	writeErr    error
}

type memCollection struct {
	order []string
	docs  map[string]map[string]any
}

// NewMemoryStore erstellt einen leeren Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[string]*memCollection{},
		subs:        map[string]map[int]SnapshotFunc{},
		denied:      map[string]bool{},
	}
}

// DenySubscriptions lässt alle künftigen Subscribes auf collection scheitern.
func (s *MemoryStore) DenySubscriptions(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[collection] = true
}

// AllowSubscriptions hebt DenySubscriptions für collection wieder auf.
func (s *MemoryStore) AllowSubscriptions(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.denied, collection)
}

// FailWrites lässt alle Schreibzugriffe mit err scheitern, bis FailWrites(nil).
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{docs: map[string]map[string]any{}}
		s.collections[name] = c
	}
	return c
}

// Insert legt ein Dokument mit neuer ID an.
func (s *MemoryStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return "", fmt.Errorf("%w: insert: %v", ErrStore, err)
	}
	id := uuid.NewString()
	c := s.collection(collection)
	c.order = append(c.order, id)
	c.docs[id] = writableFields(fields, true)
	s.mu.Unlock()

	s.notify(collection)
	return id, nil
}

// Update ersetzt die übergebenen Felder. owner_identity bleibt unverändert.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return fmt.Errorf("%w: update: %v", ErrStore, err)
	}
	doc, ok := s.collection(collection).docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range writableFields(fields, false) {
		doc[k] = v
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// Delete entfernt ein Dokument. Unbekannte IDs sind kein Fehler.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return fmt.Errorf("%w: delete: %v", ErrStore, err)
	}
	c := s.collection(collection)
	if _, ok := c.docs[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// Get liefert eine Kopie der Felder eines Dokuments.
func (s *MemoryStore) Get(collection, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collection(collection).docs[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

// Subscribe registriert einen Listener und liefert sofort den aktuellen Snapshot.
func (s *MemoryStore) Subscribe(collection string, onSnapshot SnapshotFunc) (Unsubscribe, error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.denied[collection] {
		s.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", collection, ErrSubscriptionDenied)
	}
	if s.subs[collection] == nil {
		s.subs[collection] = map[int]SnapshotFunc{}
	}
	key := s.nextSub
	s.nextSub++
	s.subs[collection][key] = onSnapshot
	snap := s.snapshotLocked(collection)
	s.mu.Unlock()

	onSnapshot(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[collection], key)
			s.mu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) snapshotLocked(collection string) []models.RawRecord {
	c := s.collection(collection)
	out := make([]models.RawRecord, 0, len(c.order))
	for _, id := range c.order {
		fields := make(map[string]any, len(c.docs[id]))
		for k, v := range c.docs[id] {
			fields[k] = v
		}
		out = append(out, models.RawRecord{ID: id, Fields: fields})
	}
	return out
}

func (s *MemoryStore) notify(collection string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	snap := s.snapshotLocked(collection)
	listeners := make([]SnapshotFunc, 0, len(s.subs[collection]))
	for _, fn := range s.subs[collection] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
