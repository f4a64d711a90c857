package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paper-registry/models"
)

var _ DocumentStore = (*GormStore)(nil)

// GormStore speichert Collections als Tabellen in PostgreSQL.
// Nach jedem Schreibzugriff wird über den ChangeNotifier ein neuer Snapshot angestoßen.
type GormStore struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Notifier ChangeNotifier

	mu        sync.Mutex
	deliverMu sync.Mutex
	subs      map[string]map[int]SnapshotFunc
	nextSub   int
}

// NewGormStore erstellt einen Store auf einer bestehenden GORM-Verbindung.
func NewGormStore(db *gorm.DB, notifier ChangeNotifier, logger *zap.Logger) *GormStore {
	return &GormStore{
		DB:       db,
		Logger:   logger,
		Notifier: notifier,
		subs:     map[string]map[int]SnapshotFunc{},
	}
}

// Migrate legt die Tabellen für die gegebenen Collections an.
func (s *GormStore) Migrate(collections ...string) error {
	for _, c := range collections {
		if err := s.DB.Table(c).AutoMigrate(&models.PaperDocument{}); err != nil {
			return fmt.Errorf("migrate collection %s: %w", c, err)
		}
	}
	return nil
}

// Start hört auf Änderungen (auch von anderen Instanzen) und verteilt Snapshots.
func (s *GormStore) Start(ctx context.Context) {
	go func() {
		err := s.Notifier.Listen(ctx, func(collection string) {
			s.refresh(context.Background(), collection)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Error("Change listener stopped", zap.Error(err))
		}
	}()
}

func (s *GormStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	doc := models.DocumentFromFields(uuid.NewString(), writableFields(fields, true))
	if err := s.DB.WithContext(ctx).Table(collection).Create(&doc).Error; err != nil {
		return "", fmt.Errorf("%w: insert into %s: %v", ErrStore, collection, err)
	}
	s.publish(ctx, collection)
	return doc.ID, nil
}

func (s *GormStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := writableFields(fields, false)
	updates["updated_at"] = time.Now()

	res := s.DB.WithContext(ctx).Table(collection).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("%w: update %s/%s: %v", ErrStore, collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	s.publish(ctx, collection)
	return nil
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	res := s.DB.WithContext(ctx).Table(collection).Where("id = ?", id).Delete(&models.PaperDocument{})
	if res.Error != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrStore, collection, id, res.Error)
	}
	if res.RowsAffected > 0 {
		s.publish(ctx, collection)
	}
	return nil
}

func (s *GormStore) Subscribe(collection string, onSnapshot SnapshotFunc) (Unsubscribe, error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	snap, err := s.load(context.Background(), collection)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w: %v", collection, ErrSubscriptionDenied, err)
	}

	s.mu.Lock()
	if s.subs[collection] == nil {
		s.subs[collection] = map[int]SnapshotFunc{}
	}
	key := s.nextSub
	s.nextSub++
	s.subs[collection][key] = onSnapshot
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

func (s *GormStore) load(ctx context.Context, collection string) ([]models.RawRecord, error) {
	var docs []models.PaperDocument
	if err := s.DB.WithContext(ctx).Table(collection).Order("created_at asc, id asc").Find(&docs).Error; err != nil {
		return nil, err
	}
	out := make([]models.RawRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Raw())
	}
	return out, nil
}

func (s *GormStore) publish(ctx context.Context, collection string) {
	if err := s.Notifier.Publish(ctx, collection); err != nil {
		// Schreibzugriff war erfolgreich, nur die Benachrichtigung fehlt
		s.Logger.Warn("Failed to publish collection change", zap.String("collection", collection), zap.Error(err))
	}
}

func (s *GormStore) refresh(ctx context.Context, collection string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	listeners := make([]SnapshotFunc, 0, len(s.subs[collection]))
	for _, fn := range s.subs[collection] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	snap, err := s.load(ctx, collection)
	if err != nil {
		s.Logger.Error("Failed to load snapshot", zap.String("collection", collection), zap.Error(err))
		return
	}
	for _, fn := range listeners {
		fn(snap)
	}
}
