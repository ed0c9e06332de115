// Package pgstore keeps listings in Postgres and records every status
// change in the transactional outbox.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/listing-autoposter/internal/database"
	"github.com/maltedev/listing-autoposter/internal/events"
	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/storage"
)

const listingColumns = `
	id, title, price, zip_code, description, condition, category,
	image_path, image_data, platform, status, created_at, updated_at`

type Store struct {
	db        *database.DB
	publisher *events.Publisher
	logger    *slog.Logger
}

// New returns a Postgres-backed store. publisher may be nil, in which case
// no lifecycle events are written.
func New(db *database.DB, publisher *events.Publisher, logger *slog.Logger) *Store {
	return &Store{
		db:        db,
		publisher: publisher,
		logger:    logger.With("component", "pgstore"),
	}
}

func (s *Store) All(ctx context.Context) ([]*models.Listing, error) {
	rows, err := s.db.Query(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list listings: %v", storage.ErrStore, err)
	}
	return collectListings(rows)
}

func (s *Store) Get(ctx context.Context, id string) (*models.Listing, error) {
	row := s.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)

	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get listing: %v", storage.ErrStore, err)
	}
	return l, nil
}

func (s *Store) Upsert(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	saved := *listing
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	if saved.Status == "" {
		saved.Status = models.StatusDraft
	}

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		var previous string
		err := tx.QueryRow(ctx, `SELECT status FROM listings WHERE id = $1 FOR UPDATE`, saved.ID).Scan(&previous)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		query := `
			INSERT INTO listings (
				id, title, price, zip_code, description, condition, category,
				image_path, image_data, platform, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				price = EXCLUDED.price,
				zip_code = EXCLUDED.zip_code,
				description = EXCLUDED.description,
				condition = EXCLUDED.condition,
				category = EXCLUDED.category,
				image_path = EXCLUDED.image_path,
				image_data = EXCLUDED.image_data,
				platform = EXCLUDED.platform,
				status = EXCLUDED.status,
				updated_at = NOW()
			RETURNING created_at, updated_at`

		err = tx.QueryRow(ctx, query,
			saved.ID, saved.Title, string(saved.Price), saved.ZipCode, saved.Description,
			saved.Condition, string(saved.Category), saved.ImagePath, saved.ImageData,
			string(saved.Platform), string(saved.Status),
		).Scan(&saved.CreatedAt, &saved.UpdatedAt)
		if err != nil {
			return err
		}

		if previous != string(saved.Status) {
			return s.publishTx(ctx, tx, &saved, previous)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upsert listing: %v", storage.ErrStore, err)
	}

	saved.CreatedAt = saved.CreatedAt.UTC()
	saved.UpdatedAt = saved.UpdatedAt.UTC()
	return &saved, nil
}

// Delete removes the listing. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%w: delete listing: %v", storage.ErrStore, err)
	}
	return nil
}

func (s *Store) FindByStatus(ctx context.Context, status models.Status) ([]*models.Listing, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE status = $1 ORDER BY created_at, id`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: find listings: %v", storage.ErrStore, err)
	}
	return collectListings(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
		current, err := scanListing(row)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE listings SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, string(status))
		if err != nil {
			return err
		}

		previous := string(current.Status)
		current.Status = status
		return s.publishTx(ctx, tx, current, previous)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: update status: %v", storage.ErrStore, err)
	}

	s.logger.Debug("listing status updated", "id", id, "status", status)
	return nil
}

func (s *Store) publishTx(ctx context.Context, tx pgx.Tx, l *models.Listing, previous string) error {
	if s.publisher == nil {
		return nil
	}

	return s.publisher.PublishStatusChangedTx(ctx, tx, &events.ListingStatusChangedPayload{
		ListingID:      l.ID,
		Title:          l.Title,
		Price:          string(l.Price),
		Platform:       string(l.Platform),
		PreviousStatus: previous,
		Status:         string(l.Status),
	})
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var (
		l                                 models.Listing
		price, category, platform, status string
		createdAt, updatedAt              time.Time
	)

	err := row.Scan(
		&l.ID, &l.Title, &price, &l.ZipCode, &l.Description, &l.Condition, &category,
		&l.ImagePath, &l.ImageData, &platform, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Price = models.Price(price)
	l.Category = models.Category(category)
	l.Platform = models.Platform(platform)
	l.Status = models.Status(status)
	l.CreatedAt = createdAt.UTC()
	l.UpdatedAt = updatedAt.UTC()
	return &l, nil
}

func collectListings(rows pgx.Rows) ([]*models.Listing, error) {
	defer rows.Close()

	listings := []*models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan listing: %v", storage.ErrStore, err)
		}
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate listings: %v", storage.ErrStore, err)
	}
	return listings, nil
}
