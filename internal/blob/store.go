// Package blob stores uploaded tool images on the local filesystem and
// serves them back by ID.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown blob IDs.
	ErrNotFound = errors.New("blob: not found")
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("blob: too large")
	// ErrUnsupportedType is returned for anything but JPEG, PNG, WebP and GIF.
	ErrUnsupportedType = errors.New("blob: unsupported content type")
	// ErrEmpty is returned for an empty upload.
	ErrEmpty = errors.New("blob: empty")
)

// extensions maps accepted content types to file extensions.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Blob describes a stored upload.
type Blob struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	URL         string `json:"url"`
	BlurHash    string `json:"blurhash,omitempty"`
	SHA256      string `json:"sha256"`
}

// Store manages blob files under one directory.
type Store struct {
	basePath  string
	publicURL string
	maxBytes  int
	logger    *slog.Logger
	mu        sync.RWMutex
}

// Options configures a Store.
type Options struct {
	Path      string
	PublicURL string // prefix of returned URLs, e.g. "https://tools.example.dk/api/v1/blobs"
	MaxBytes  int
	Logger    *slog.Logger
}

// NewStore creates the storage directory if needed.
func NewStore(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("blob path cannot be empty")
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		basePath:  opts.Path,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		maxBytes:  opts.MaxBytes,
		logger:    logger,
	}, nil
}

// MaxBytes is the largest accepted upload.
func (s *Store) MaxBytes() int { return s.maxBytes }

// Put stores data. The declared content type must agree with the sniffed
// one; an empty declaration accepts whatever is sniffed.
func (s *Store) Put(ctx context.Context, data []byte, declared string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	if len(data) == 0 {
		return Blob{}, ErrEmpty
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return Blob{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), s.maxBytes)
	}

	detected := mimetype.Detect(data).String()
	ext, ok := extensions[detected]
	if !ok {
		return Blob{}, fmt.Errorf("%w: %s", ErrUnsupportedType, detected)
	}
	if declared != "" {
		base, _, _ := strings.Cut(declared, ";")
		if strings.TrimSpace(strings.ToLower(base)) != detected {
			return Blob{}, fmt.Errorf("%w: declared %s, got %s", ErrUnsupportedType, declared, detected)
		}
	}

	id := uuid.NewString() + ext
	sum := sha256.Sum256(data)
	b := Blob{
		ID:          id,
		ContentType: detected,
		Size:        len(data),
		URL:         s.publicURL + "/" + id,
		SHA256:      hex.EncodeToString(sum[:]),
	}
	if hash, err := ComputeBlurHash(data); err != nil {
		s.logger.Warn("failed to compute blurhash", "id", id, "error", err)
	} else {
		b.BlurHash = hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path(id), data); err != nil {
		return Blob{}, err
	}
	s.logger.Info("blob stored", "id", id, "content_type", detected, "size", len(data))
	return b, nil
}

// Get returns the bytes and content type of id.
func (s *Store) Get(id string) ([]byte, string, error) {
	if !validID(id) {
		return nil, "", ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("failed to read blob: %w", err)
	}
	return data, contentTypeOf(id), nil
}

// Delete removes id. Deleting a missing blob is not an error.
func (s *Store) Delete(id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.basePath, id)
}

// validID accepts "<uuid><ext>" only, which also keeps IDs inside basePath.
func validID(id string) bool {
	ext := filepath.Ext(id)
	if contentTypeOf(id) == "" {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(id, ext))
	return err == nil
}

func contentTypeOf(id string) string {
	ext := filepath.Ext(id)
	for ct, e := range extensions {
		if e == ext {
			return ct
		}
	}
	return ""
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move blob into place: %w", err)
	}
	return nil
}
