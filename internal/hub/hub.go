// Package hub resolves pretrained model identifiers to local directories.
//
// An identifier is looked up, in order, as:
//  1. an existing local directory;
//  2. a cached copy under <cache>/<org>--<name>;
//  3. an object-store mirror at <bucket>/<prefix>/<id>/..., downloaded into the cache.
package hub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrUnknownModel is returned when an identifier is empty or not found in any source.
var ErrUnknownModel = errors.New("unknown model")

// Resolver maps model identifiers to directories on disk.
type Resolver struct {
	cacheDir string
	mirror   *Mirror
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMirror enables downloads from an object-store mirror.
func WithMirror(m *Mirror) Option {
	return func(r *Resolver) { r.mirror = m }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver caching downloads under cacheDir.
func NewResolver(cacheDir string, opts ...Option) *Resolver {
	r := &Resolver{cacheDir: cacheDir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the directory holding the files for id.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrUnknownModel)
	}

	if isDir(id) {
		return id, nil
	}

	key, err := normalizeID(id)
	if err != nil {
		return "", err
	}

	cached := r.CachePath(key)
	if r.cacheDir != "" && isDir(cached) {
		r.logger.Debug("Using cached model", zap.String("id", key), zap.String("path", cached))
		return cached, nil
	}

	if r.mirror == nil || r.cacheDir == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	r.logger.Info("Downloading model from mirror",
		zap.String("id", key),
		zap.String("bucket", r.mirror.Bucket()),
		zap.String("path", cached))
	if err := r.download(ctx, key, cached); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
		}
		return "", fmt.Errorf("download %q: %w", id, err)
	}
	return cached, nil
}

// CachePath returns the cache directory for a normalized identifier.
func (r *Resolver) CachePath(id string) string {
	return filepath.Join(r.cacheDir, strings.ReplaceAll(id, "/", "--"))
}

// download fetches into a staging directory and renames it into place so a
// partially downloaded model is never visible in the cache.
func (r *Resolver) download(ctx context.Context, id, dst string) error {
	if err := os.MkdirAll(r.cacheDir, 0o750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	staging, err := os.MkdirTemp(r.cacheDir, ".download-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	n, err := r.mirror.FetchDir(ctx, id, staging)
	if err != nil {
		return err
	}
	if err := os.Rename(staging, dst); err != nil {
		// Another process may have completed the same download.
		if isDir(dst) {
			return nil
		}
		return fmt.Errorf("install %s: %w", dst, err)
	}
	r.logger.Info("Model downloaded", zap.String("id", id), zap.Int("files", n))
	return nil
}

func normalizeID(id string) (string, error) {
	cleaned := path.Clean(strings.Trim(id, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("%w: invalid identifier %q", ErrUnknownModel, id)
	}
	return cleaned, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
