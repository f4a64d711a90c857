package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"paper-registry/models"
	"paper-registry/storage"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "paper_commands_total",
	Help: "Schreibbefehle gegen den Dokument-Store nach Operation und Ergebnis.",
}, []string{"op", "outcome"})

// CommandExecutor schreibt Drafts in den Dokument-Store.
// Er verändert nie den Mirror; Änderungen kommen nur über den Feed zurück.
type CommandExecutor struct {
	store      storage.DocumentStore
	collection string
	logger     *zap.Logger
}

// NewCommandExecutor erstellt einen Executor für collection.
func NewCommandExecutor(store storage.DocumentStore, collection string, logger *zap.Logger) *CommandExecutor {
	return &CommandExecutor{store: store, collection: collection, logger: logger}
}

// Create legt einen neuen Record an, Eigentümer ist actor.
func (e *CommandExecutor) Create(ctx context.Context, actor string, d models.Draft) (string, error) {
	fields := d.Fields()
	fields[models.FieldOwnerIdentity] = actor
	id, err := e.store.Insert(ctx, e.collection, fields)
	if err != nil {
		commandsTotal.WithLabelValues("create", "error").Inc()
		e.logger.Error("Failed to create paper", zap.String("owner", actor), zap.Error(err))
		return "", fmt.Errorf("create: %w", err)
	}
	commandsTotal.WithLabelValues("create", "ok").Inc()
	e.logger.Info("Paper created", zap.String("record_id", id), zap.String("owner", actor))
	return id, nil
}

// Update ersetzt alle veränderbaren Felder. Ist id nicht mehr vorhanden,
// ist das Ergebnis storage.ErrNotFound.
func (e *CommandExecutor) Update(ctx context.Context, id string, d models.Draft) error {
	if err := e.store.Update(ctx, e.collection, id, d.Fields()); err != nil {
		outcome := "error"
		if errors.Is(err, storage.ErrNotFound) {
			outcome = "not_found"
		}
		commandsTotal.WithLabelValues("update", outcome).Inc()
		e.logger.Warn("Failed to update paper", zap.String("record_id", id), zap.Error(err))
		return fmt.Errorf("update %s: %w", id, err)
	}
	commandsTotal.WithLabelValues("update", "ok").Inc()
	e.logger.Info("Paper updated", zap.String("record_id", id))
	return nil
}

// Delete löscht id. Ein bereits gelöschter Record ist kein Fehler.
func (e *CommandExecutor) Delete(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, e.collection, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		commandsTotal.WithLabelValues("delete", "error").Inc()
		e.logger.Error("Failed to delete paper", zap.String("record_id", id), zap.Error(err))
		return fmt.Errorf("delete %s: %w", id, err)
	}
	commandsTotal.WithLabelValues("delete", "ok").Inc()
	e.logger.Info("Paper deleted", zap.String("record_id", id))
	return nil
}
