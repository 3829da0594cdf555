// Package storage keeps publication files (full-text PDFs and award
// certificates) on an afero filesystem, keyed by publication id.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/helixir/research-registry-service/internal/config"
	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/observability"
)

// Sentinel errors for storage operations. They wrap the domain sentinels so
// callers can map them without importing this package.
var (
	// ErrNotPDF is returned when content is not a PDF document.
	ErrNotPDF = fmt.Errorf("storage: content is not a PDF: %w", domain.ErrInvalidInput)
	// ErrTooLarge is returned when content exceeds the maximum file size.
	ErrTooLarge = fmt.Errorf("storage: file exceeds maximum size: %w", domain.ErrInvalidInput)
	// ErrDownloadFailed is returned when a remote download fails.
	ErrDownloadFailed = fmt.Errorf("storage: download failed: %w", domain.ErrServiceUnavailable)
	// ErrSSRF is returned when a URL resolves to a private network address.
	ErrSSRF = fmt.Errorf("storage: request to private network denied: %w", domain.ErrInvalidInput)
)

// Kind is a category of stored file.
type Kind string

const (
	// KindPublication is the full text of a publication.
	KindPublication Kind = "publications"
	// KindAward is the certificate attached to an award publication.
	KindAward Kind = "awards"
)

var kinds = []Kind{KindPublication, KindAward}

// FileInfo describes a stored file.
type FileInfo struct {
	Kind          Kind   `json:"kind"`
	PublicationID int64  `json:"publication_id"`
	Path          string `json:"path"`
	SizeBytes     int64  `json:"size_bytes"`
	ContentHash   string `json:"content_hash"`
}

// Files stores publication files under a root directory.
type Files struct {
	fs      afero.Fs
	root    string
	maxSize int64
	fetcher *Fetcher
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// New creates file storage on fs. metrics may be nil.
func New(fs afero.Fs, cfg config.StorageConfig, metrics *observability.Metrics, logger zerolog.Logger) *Files {
	if cfg.Root == "" {
		cfg.Root = "data"
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 100 * 1024 * 1024
	}
	return &Files{
		fs:      fs,
		root:    cfg.Root,
		maxSize: cfg.MaxFileSize,
		fetcher: NewFetcher(FetcherConfig{
			Timeout:              cfg.DownloadTimeout,
			MaxSize:              cfg.MaxFileSize,
			AllowPrivateNetworks: cfg.AllowPrivateNetworks,
		}),
		metrics: metrics,
		logger:  logger.With().Str("component", "storage").Logger(),
	}
}

// NewOS creates file storage on the local disk.
func NewOS(cfg config.StorageConfig, metrics *observability.Metrics, logger zerolog.Logger) *Files {
	return New(afero.NewOsFs(), cfg, metrics, logger)
}

// Path returns the storage path of a publication file.
func (f *Files) Path(kind Kind, publicationID int64) string {
	return filepath.Join(f.root, string(kind), strconv.FormatInt(publicationID, 10)+".pdf")
}

// Save stores r as the file of a publication, replacing any previous one.
// The content must be a PDF no larger than the configured maximum. The
// file is written to a temporary name first and renamed into place.
func (f *Files) Save(ctx context.Context, kind Kind, publicationID int64, r io.Reader) (info *FileInfo, err error) {
	defer func() { f.record("save", err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(content)) > f.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, f.maxSize)
	}
	if !isPDF(content) {
		return nil, ErrNotPDF
	}

	path := f.Path(kind, publicationID)
	if err := f.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, content, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, path); err != nil {
		_ = f.fs.Remove(tmp)
		return nil, fmt.Errorf("move %s into place: %w", path, err)
	}

	hash := sha256.Sum256(content)
	f.logger.Debug().Str("kind", string(kind)).Int64("publication_id", publicationID).Int("size", len(content)).Msg("file stored")
	return &FileInfo{
		Kind:          kind,
		PublicationID: publicationID,
		Path:          path,
		SizeBytes:     int64(len(content)),
		ContentHash:   hex.EncodeToString(hash[:]),
	}, nil
}

// Open opens the file of a publication. The caller closes it.
func (f *Files) Open(_ context.Context, kind Kind, publicationID int64) (afero.File, error) {
	file, err := f.fs.Open(f.Path(kind, publicationID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.NewNotFoundError("file", fmt.Sprintf("%s/%d", kind, publicationID))
	}
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Exists reports whether a publication has a file of the given kind.
func (f *Files) Exists(_ context.Context, kind Kind, publicationID int64) (bool, error) {
	return afero.Exists(f.fs, f.Path(kind, publicationID))
}

// Rename moves every file of oldID to newID. It is used when a publication
// is stored again under a new id.
func (f *Files) Rename(_ context.Context, oldID, newID int64) (err error) {
	defer func() { f.record("rename", err) }()

	for _, kind := range kinds {
		from, to := f.Path(kind, oldID), f.Path(kind, newID)
		ok, err := afero.Exists(f.fs, from)
		if err != nil {
			return fmt.Errorf("stat %s: %w", from, err)
		}
		if !ok {
			continue
		}
		if err := f.fs.Rename(from, to); err != nil {
			return fmt.Errorf("rename %s to %s: %w", from, to, err)
		}
	}
	return nil
}

// Delete removes every file of a publication. Missing files are not an error.
func (f *Files) Delete(_ context.Context, publicationID int64) (err error) {
	defer func() { f.record("delete", err) }()

	var errs []error
	for _, kind := range kinds {
		if err := f.fs.Remove(f.Path(kind, publicationID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteQuietly is Delete for cleanup paths: failures are logged and dropped.
func (f *Files) DeleteQuietly(ctx context.Context, publicationID int64) {
	if err := f.Delete(ctx, publicationID); err != nil {
		f.logger.Warn().Err(err).Int64("publication_id", publicationID).Msg("failed to delete publication files")
	}
}

// Fetch downloads a remote PDF and stores it as the file of a publication.
func (f *Files) Fetch(ctx context.Context, kind Kind, publicationID int64, url string) (info *FileInfo, err error) {
	result, err := f.fetcher.Fetch(ctx, url)
	f.record("fetch", err)
	if err != nil {
		return nil, err
	}
	return f.Save(ctx, kind, publicationID, bytes.NewReader(result.Content))
}

func (f *Files) record(op string, err error) {
	if f.metrics != nil {
		f.metrics.RecordFileOperation(op, err)
	}
}

// isPDF checks the "%PDF-" magic number.
func isPDF(content []byte) bool {
	return len(content) >= 5 && string(content[:5]) == "%PDF-"
}
