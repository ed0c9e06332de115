package storage

import (
	"context"
	"errors"

	"github.com/maltedev/listing-autoposter/internal/models"
)

var (
	ErrNotFound = errors.New("listing not found")
	ErrStore    = errors.New("listing store failure")
)

// Store is the persistence contract the API, the watcher and the
// orchestrator share. Implementations generate ids on first Upsert.
type Store interface {
	All(ctx context.Context) ([]*models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	Upsert(ctx context.Context, listing *models.Listing) (*models.Listing, error)
	Delete(ctx context.Context, id string) error
	FindByStatus(ctx context.Context, status models.Status) ([]*models.Listing, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) error
}
