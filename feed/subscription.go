// Package feed kapselt die Push-Subscription des Dokument-Stores als
// abbrechbaren Kanal von Snapshots.
package feed

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"paper-registry/models"
	"paper-registry/storage"
)

var (
	snapshotsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_snapshots_delivered_total",
		Help: "Snapshots, die vom Store an eine Subscription geliefert wurden.",
	})
	snapshotsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_snapshots_superseded_total",
		Help: "Snapshots, die durch einen neueren ersetzt wurden, bevor sie gelesen wurden.",
	})
	snapshotsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_snapshots_dropped_total",
		Help: "Snapshots, die nach dem Schließen der Subscription eintrafen.",
	})
)

// Source ist der Teil des Dokument-Stores, den der Feed braucht.
type Source interface {
	Subscribe(collection string, onSnapshot storage.SnapshotFunc) (storage.Unsubscribe, error)
}

// Subscription liefert Snapshots einer Collection in Zustellreihenfolge.
// Wird ein Snapshot nicht gelesen, bevor der nächste eintrifft, ersetzt der
// neuere ihn. Nach Close wird nichts mehr zugestellt.
type Subscription struct {
	collection  string
	logger      *zap.Logger
	ch          chan []models.RawRecord
	mu          sync.Mutex
	closed      bool
	unsubscribe storage.Unsubscribe
}

// Subscribe baut eine Subscription auf collection auf.
// Der initiale Snapshot liegt danach bereits im Kanal.
func Subscribe(src Source, collection string, logger *zap.Logger) (*Subscription, error) {
	s := &Subscription{
		collection: collection,
		logger:     logger.With(zap.String("collection", collection)),
		ch:         make(chan []models.RawRecord, 1),
	}
	unsub, err := src.Subscribe(collection, s.deliver)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.unsubscribe = unsub
	closed := s.closed
	s.mu.Unlock()
	if closed {
		unsub()
	}
	return s, nil
}

// Snapshots ist der Kanal mit den Snapshots. Er wird bei Close geschlossen.
func (s *Subscription) Snapshots() <-chan []models.RawRecord {
	return s.ch
}

func (s *Subscription) deliver(docs []models.RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		snapshotsDropped.Inc()
		s.logger.Debug("Dropping snapshot after teardown", zap.Int("docs", len(docs)))
		return
	}
	snapshotsDelivered.Inc()
	select {
	case s.ch <- docs:
		return
	default:
	}
	// Nur dieser Producer schreibt in den Kanal, danach ist Platz frei.
	select {
	case <-s.ch:
		snapshotsSuperseded.Inc()
	default:
	}
	s.ch <- docs
}

// Close beendet die Subscription synchron. Ungelesene Snapshots werden verworfen.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubscribe
	select {
	case <-s.ch:
		snapshotsDropped.Inc()
	default:
	}
	close(s.ch)
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.logger.Debug("Subscription closed")
}
