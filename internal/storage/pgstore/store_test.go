package pgstore

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/maltedev/listing-autoposter/internal/database"
	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Store = (*Store)(nil)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("Test database not configured")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_DATABASE_PORT"))
	if port == 0 {
		port = 5432
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.Config{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_DATABASE_USER"),
		Password: os.Getenv("TEST_DATABASE_PASSWORD"),
		Database: os.Getenv("TEST_DATABASE_NAME"),
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	_, err = db.Exec(ctx, `TRUNCATE listings`)
	require.NoError(t, err)

	return New(db, nil, slog.Default())
}

func TestStore_Lifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	saved, err := store.Upsert(ctx, &models.Listing{
		Title:    "Desk",
		Price:    "$50",
		ZipCode:  "80202",
		Category: models.CategoryFurniture,
		Status:   models.StatusPending,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, saved.Title, all[0].Title)
	assert.Equal(t, saved.Price, all[0].Price)

	pending, err := store.FindByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, store.UpdateStatus(ctx, saved.ID, models.StatusActive))
	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)

	edited := *got
	edited.Title = "Standing Desk"
	_, err = store.Upsert(ctx, &edited)
	require.NoError(t, err)
	all, err = store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Delete(ctx, saved.ID))
	require.NoError(t, store.Delete(ctx, saved.ID))

	_, err = store.Get(ctx, saved.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	err = store.UpdateStatus(ctx, saved.ID, models.StatusActive)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
