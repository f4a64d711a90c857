package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-registry/models"
	"paper-registry/projector"
	"paper-registry/storage"
)

type memUploader struct {
	mu   sync.Mutex
	keys []string
	data map[string][]byte
}

func (u *memUploader) Upload(_ context.Context, key, contentType string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	u.data[key] = data
	return "https://s3.example.org/exports/" + key, nil
}

func startHub(t *testing.T, store *storage.MemoryStore) *Hub {
	t.Helper()
	hub := NewHub(store, collection, projector.NewMemo(16, time.Minute), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, hub.Connected, timeout, tick)
	return hub
}

func TestFormatReference(t *testing.T) {
	r := models.Record{
		Title:     "Graph Networks",
		Authors:   []string{"Rao", "Iyer"},
		Kind:      models.KindConference,
		VenueName: "ICML",
		PeriodKey: "2024-06",
		Status:    models.StatusAccepted,
		Indexing:  "Scopus",
		Quartile:  "Q1",
	}
	assert.Equal(t, "Rao, Iyer (2024). Graph Networks. In: ICML [Scopus (Q1)] (Accepted).", FormatReference(r))
	assert.Equal(t, "Unknown Authors (n.d.). Untitled.", FormatReference(models.Record{}))

	many := models.Record{Title: "T", Authors: []string{"a", "b", "c", "d", "e", "f", "g"}}
	assert.Equal(t, "a, b, c, d, e, f et al. (n.d.). T.", FormatReference(many))
}

func TestHub(t *testing.T) {
	store := storage.NewMemoryStore()
	hub := NewHub(store, collection, nil, zap.NewNop())
	_, _, err := hub.View(projector.AdminView())
	assert.ErrorIs(t, err, ErrDisconnected)

	hub = startHub(t, store)
	ctx := context.Background()
	_, err = store.Insert(ctx, collection, map[string]any{models.FieldTitle: "A", models.FieldOwnerIdentity: "alice", models.FieldDepartment: "Physics"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, collection, map[string]any{models.FieldTitle: "B", models.FieldOwnerIdentity: "bob"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rows, _, err := hub.View(projector.AdminView())
		return err == nil && len(rows) == 2
	}, timeout, tick)
	rows, choices, err := hub.View(projector.OwnerView("bob"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].Title)
	assert.Empty(t, choices.Departments)
}

func TestHub_RetriesFailedSubscribe(t *testing.T) {
	store := storage.NewMemoryStore()
	store.DenySubscriptions(collection)
	hub := NewHub(store, collection, nil, zap.NewNop())
	hub.retryMin, hub.retryMax = 5*time.Millisecond, 20*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	assert.Never(t, hub.Connected, 60*time.Millisecond, tick)
	_, _, err := hub.View(projector.AdminView())
	assert.ErrorIs(t, err, ErrDisconnected)

	_, err = store.Insert(context.Background(), collection, map[string]any{models.FieldTitle: "A"})
	require.NoError(t, err)
	store.AllowSubscriptions(collection)
	require.Eventually(t, hub.Connected, timeout, tick)
	require.Eventually(t, func() bool {
		rows, _, err := hub.View(projector.AdminView())
		return err == nil && len(rows) == 1
	}, timeout, tick)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(timeout):
		t.Fatal("hub did not stop")
	}
	assert.False(t, hub.Connected())
}

func TestExportService(t *testing.T) {
	store := storage.NewMemoryStore()
	hub := startHub(t, store)
	ctx := context.Background()
	for _, title := range []string{"Deep Learning", " deep learning", "Graph Networks"} {
		_, err := store.Insert(ctx, collection, map[string]any{
			models.FieldTitle:         title,
			models.FieldAuthors:       "Rao, Iyer",
			models.FieldPeriodKey:     "2023-01",
			models.FieldIndexing:      "Scopus - Q2",
			models.FieldOwnerIdentity: "alice",
		})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		rows, _, err := hub.View(projector.AdminView())
		return err == nil && len(rows) == 2
	}, timeout, tick)

	uploader := &memUploader{data: map[string][]byte{}}
	svc := NewExportService(hub, uploader, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC) }

	url, err := svc.Upload(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.org/exports/exports/papers-20260301-020000.csv", url)
	require.Len(t, uploader.keys, 1)

	records, err := csv.NewReader(bytes.NewReader(uploader.data[uploader.keys[0]])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, []string{"1", "Deep Learning", "Rao, Iyer"}, records[1][:3])
	assert.Equal(t, "Scopus (Q2)", records[1][8])
	assert.Equal(t, "Rao, Iyer (2023). Deep Learning. [Scopus (Q2)].", records[1][12])
	assert.Equal(t, "Graph Networks", records[2][1])

	t.Run("owner filter is ignored", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := svc.WriteCSV(&buf, projector.OwnerView("nobody"))
		require.NoError(t, err)
		assert.Equal(t, 3, n, "export always covers all records")
	})

	t.Run("upload needs an uploader", func(t *testing.T) {
		_, err := NewExportService(hub, nil, zap.NewNop()).Upload(ctx)
		assert.Error(t, err)
	})
}
