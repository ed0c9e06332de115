package orchestrator

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/listing-autoposter/internal/models"
)

// ErrImageDecode is returned when an inline image payload cannot be
// decoded. The run stops before any browser is opened.
var ErrImageDecode = errors.New("image decode failed")

// decodeImage accepts raw base64 or a data URL; for data URLs only the
// part after the first comma is decoded.
func decodeImage(data string) ([]byte, error) {
	payload := strings.TrimSpace(data)
	if i := strings.Index(payload, ","); i >= 0 {
		payload = payload[i+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		if raw, rawErr = base64.RawStdEncoding.DecodeString(payload); rawErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrImageDecode)
	}
	return raw, nil
}

// ResolveImage returns the absolute path the drivers upload, writing an
// inline payload to the temp file first. An empty path means no image.
func (o *Orchestrator) ResolveImage(listing *models.Listing) (string, error) {
	switch {
	case listing.ImageData != "":
		raw, err := decodeImage(listing.ImageData)
		if err != nil {
			return "", err
		}

		path, err := filepath.Abs(filepath.Join(o.cfg.ImageDir, o.cfg.ImageTempName))
		if err != nil {
			return "", fmt.Errorf("failed to resolve image path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create image dir: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", fmt.Errorf("failed to write image: %w", err)
		}
		return path, nil

	case listing.ImagePath != "":
		path, err := filepath.Abs(listing.ImagePath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve image path: %w", err)
		}
		if _, err := os.Stat(path); err != nil {
			o.logger.Warn("image file not accessible", "path", path, "error", err)
			return "", nil
		}
		return path, nil
	}

	return "", nil
}
