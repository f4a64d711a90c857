package projector

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"paper-registry/models"
)

var (
	memoHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "projection_cache_hits_total",
		Help: "Projektionen, die aus dem Cache beantwortet wurden.",
	})
	memoMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "projection_cache_misses_total",
		Help: "Projektionen, die neu berechnet wurden.",
	})
)

// Memo cached Projektionen pro Mirror-Generation und Config.
// Da Project rein ist, genügt die Generation zur Invalidierung.
type Memo struct {
	cache *expirable.LRU[string, []models.Record]
}

// NewMemo erstellt einen Cache mit maxSize Einträgen und TTL.
func NewMemo(maxSize int, ttl time.Duration) *Memo {
	return &Memo{cache: expirable.NewLRU[string, []models.Record](maxSize, nil, ttl)}
}

// Project liefert Project(records, cfg), ggf. aus dem Cache.
// generation muss sich ändern, sobald sich records ändert.
func (m *Memo) Project(generation uint64, records []models.Record, cfg Config) []models.Record {
	key := fmt.Sprintf("%d|%s", generation, cfg.key())
	if cached, ok := m.cache.Get(key); ok {
		memoHitsTotal.Inc()
		return append([]models.Record(nil), cached...)
	}
	memoMissesTotal.Inc()
	out := Project(records, cfg)
	m.cache.Add(key, out)
	return append([]models.Record(nil), out...)
}
