package storage

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-registry/models"
)

type countingNotifier struct {
	published atomic.Int32
}

func (n *countingNotifier) Publish(context.Context, string) error {
	n.published.Add(1)
	return nil
}

func (n *countingNotifier) Listen(ctx context.Context, _ func(string)) error {
	<-ctx.Done()
	return ctx.Err()
}

func newMockGormStore(t *testing.T) (*GormStore, sqlmock.Sqlmock, *countingNotifier) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)

	n := &countingNotifier{}
	return NewGormStore(db, n, zap.NewNop()), mock, n
}

func TestGormStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("vanished row is not found", func(t *testing.T) {
		store, mock, n := newMockGormStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "papers" SET`)).
			WithArgs("New", sqlmock.AnyArg(), "p1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Update(ctx, "papers", "p1", map[string]any{models.FieldTitle: "New"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, ErrStore)
		assert.Zero(t, n.published.Load())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner is never rewritten", func(t *testing.T) {
		store, mock, n := newMockGormStore(t)
		// nur title und updated_at werden gesetzt
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "papers" SET`)).
			WithArgs("New", sqlmock.AnyArg(), "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Update(ctx, "papers", "p1", map[string]any{
			models.FieldTitle:         "New",
			models.FieldOwnerIdentity: "mallory",
			"unknown_column":          "x",
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), n.published.Load())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver errors are store errors", func(t *testing.T) {
		store, mock, _ := newMockGormStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "papers" SET`)).
			WillReturnError(errors.New("connection reset"))

		err := store.Update(ctx, "papers", "p1", map[string]any{models.FieldTitle: "New"})
		assert.ErrorIs(t, err, ErrStore)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, mock, n := newMockGormStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "papers"`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "papers"`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(ctx, "papers", "p1"))
	require.NoError(t, store.Delete(ctx, "papers", "p1"))
	assert.Equal(t, int32(1), n.published.Load(), "only the effective delete notifies")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Subscribe(t *testing.T) {
	t.Run("delivers current rows", func(t *testing.T) {
		store, mock, _ := newMockGormStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "papers"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "indexing", "owner_identity"}).
				AddRow("p1", "X", "Scopus (Q1)", "alice").
				AddRow("p2", "Y", "", "bob"))

		var got []models.RawRecord
		unsub, err := store.Subscribe("papers", func(docs []models.RawRecord) { got = docs })
		require.NoError(t, err)
		defer unsub()

		require.Len(t, got, 2)
		r := got[0].Normalize()
		assert.Equal(t, "p1", r.ID)
		assert.Equal(t, "X", r.Title)
		assert.Equal(t, "Q1", r.Quartile)
		assert.Equal(t, "alice", r.OwnerIdentity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("load failure denies the subscription", func(t *testing.T) {
		store, mock, _ := newMockGormStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "papers"`)).
			WillReturnError(errors.New("permission denied for table papers"))

		_, err := store.Subscribe("papers", func([]models.RawRecord) { t.Fatal("no snapshot expected") })
		assert.ErrorIs(t, err, ErrSubscriptionDenied)
		assert.ErrorIs(t, err, ErrStore)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
