package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/listing-autoposter/internal/models"
)

// FileStore keeps listings as a JSON array on disk. The file is re-read on
// every call so a watcher process sees edits made by the API process.
type FileStore struct {
	mu       sync.Mutex
	filename string
}

func NewFileStore(filename string) *FileStore {
	return &FileStore{filename: filename}
}

func (fs *FileStore) All(ctx context.Context) ([]*models.Listing, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.load()
}

func (fs *FileStore) Get(ctx context.Context, id string) (*models.Listing, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	listings, err := fs.load()
	if err != nil {
		return nil, err
	}

	for _, l := range listings {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (fs *FileStore) Upsert(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	listings, err := fs.load()
	if err != nil {
		return nil, err
	}

	saved := *listing
	now := time.Now().UTC()
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	if saved.Status == "" {
		saved.Status = models.StatusDraft
	}
	saved.UpdatedAt = now

	replaced := false
	for i, l := range listings {
		if l.ID == saved.ID {
			if saved.CreatedAt.IsZero() {
				saved.CreatedAt = l.CreatedAt
			}
			listings[i] = &saved
			replaced = true
			break
		}
	}
	if !replaced {
		if saved.CreatedAt.IsZero() {
			saved.CreatedAt = now
		}
		listings = append(listings, &saved)
	}

	if err := fs.save(listings); err != nil {
		return nil, err
	}
	return &saved, nil
}

// Delete removes the listing. Deleting an unknown id is not an error.
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	listings, err := fs.load()
	if err != nil {
		return err
	}

	kept := listings[:0]
	for _, l := range listings {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(listings) {
		return nil
	}

	return fs.save(kept)
}

func (fs *FileStore) FindByStatus(ctx context.Context, status models.Status) ([]*models.Listing, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	listings, err := fs.load()
	if err != nil {
		return nil, err
	}

	var matched []*models.Listing
	for _, l := range listings {
		if l.Status == status {
			matched = append(matched, l)
		}
	}
	return matched, nil
}

func (fs *FileStore) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	listings, err := fs.load()
	if err != nil {
		return err
	}

	for _, l := range listings {
		if l.ID == id {
			l.Status = status
			l.UpdatedAt = time.Now().UTC()
			return fs.save(listings)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (fs *FileStore) load() ([]*models.Listing, error) {
	data, err := os.ReadFile(fs.filename)
	if os.IsNotExist(err) {
		return []*models.Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStore, fs.filename, err)
	}
	if len(data) == 0 {
		return []*models.Listing{}, nil
	}

	var listings []*models.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStore, fs.filename, err)
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	return listings, nil
}

func (fs *FileStore) save(listings []*models.Listing) error {
	data, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStore, err)
	}

	// Write to temp file first for atomicity
	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStore, tmpFile, err)
	}

	if err := os.Rename(tmpFile, fs.filename); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrStore, tmpFile, err)
	}
	return nil
}
