package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"paper-registry/feed"
	"paper-registry/mirror"
	"paper-registry/models"
	"paper-registry/projector"
)

var hubRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "hub_feed_retries_total",
	Help: "Neuverbindungen des Hub-Feeds nach Fehlern.",
})

const (
	hubRetryMin = time.Second
	hubRetryMax = 30 * time.Second
)

// Hub hält einen serverseitigen Mirror der Collection für REST-Abfragen und Exporte.
// Anders als ein Workspace wird er von mehreren Goroutinen gelesen.
type Hub struct {
	source     feed.Source
	collection string
	memo       *projector.Memo
	logger     *zap.Logger
	retryMin   time.Duration
	retryMax   time.Duration

	mu        sync.RWMutex
	mirror    *mirror.Mirror
	connected bool
}

// NewHub erstellt einen Hub; memo darf nil sein.
func NewHub(source feed.Source, collection string, memo *projector.Memo, logger *zap.Logger) *Hub {
	logger = logger.With(zap.String("collection", collection), zap.String("component", "hub"))
	return &Hub{
		source:     source,
		collection: collection,
		memo:       memo,
		logger:     logger,
		retryMin:   hubRetryMin,
		retryMax:   hubRetryMax,
		mirror:     mirror.New(logger),
	}
}

// Run hält den Mirror aktuell, bis ctx endet. Scheitert der Feed, wird mit
// exponentiell wachsendem Abstand neu verbunden; solange gilt der Hub als getrennt.
func (h *Hub) Run(ctx context.Context) error {
	delay := h.retryMin
	for {
		err := h.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// Feed lief und wurde geschlossen
			delay = h.retryMin
		}
		hubRetries.Inc()
		h.logger.Warn("Hub feed lost, retrying", zap.Error(err), zap.Duration("retry_in", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if err != nil {
			delay = min(delay*2, h.retryMax)
		}
	}
}

// follow abonniert den Feed und wendet Snapshots an, bis ctx endet oder der
// Feed schließt.
func (h *Hub) follow(ctx context.Context) error {
	sub, err := feed.Subscribe(h.source, h.collection, h.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	defer func() {
		sub.Close()
		h.mu.Lock()
		h.connected = false
		h.mu.Unlock()
	}()

	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()
	h.logger.Info("Hub subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case docs, ok := <-sub.Snapshots():
			if !ok {
				return nil
			}
			h.mu.Lock()
			h.mirror.ApplySnapshot(docs)
			h.mu.Unlock()
		}
	}
}

// Connected meldet, ob der Feed läuft.
func (h *Hub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// View projiziert den aktuellen Mirror mit cfg.
func (h *Hub) View(cfg projector.Config) ([]models.Record, projector.Choices, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connected {
		return nil, projector.Choices{}, ErrDisconnected
	}
	all := h.mirror.All()
	var rows []models.Record
	if h.memo != nil {
		rows = h.memo.Project(h.mirror.Generation(), all, cfg)
	} else {
		rows = projector.Project(all, cfg)
	}
	return rows, projector.FilterChoices(all, cfg), nil
}
