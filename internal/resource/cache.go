// Package resource is the module-loading and file-read service used by the
// script runtime. Files are addressed relative to a root URL and read
// through afs, so the root may live on disk, in memory or in object storage.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/scenebind/host/internal/config"
)

// ErrNotFound is returned for files that are missing or unreadable.
var ErrNotFound = errors.New("file not found or unreadable")

// Cache resolves resource paths against the configured root.
type Cache struct {
	fs      afs.Service
	root    string
	decoder encoding.Encoding // nil = content is used as-is
	log     *zap.Logger
}

func New(cfg config.ResourceConfig, log *zap.Logger) (*Cache, error) {
	root := cfg.Root
	if !strings.Contains(root, "://") {
		root = url.Normalize(root, "file")
	}
	c := &Cache{
		fs:   afs.New(),
		root: strings.TrimRight(root, "/"),
		log:  log,
	}
	if name := strings.ToLower(strings.TrimSpace(cfg.Encoding)); name != "" && name != "utf-8" && name != "utf8" {
		enc, err := htmlindex.Get(name)
		if err != nil {
			return nil, fmt.Errorf("resource encoding %q: %w", cfg.Encoding, err)
		}
		c.decoder = enc
	}
	return c, nil
}

// Root returns the root URL.
func (c *Cache) Root() string { return c.root }

// URL resolves path against the root. Absolute URLs are returned unchanged.
func (c *Cache) URL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return url.Join(c.root, strings.TrimLeft(path, "/"))
}

// ReadFile returns the raw bytes of path.
func (c *Cache) ReadFile(ctx context.Context, path string) ([]byte, error) {
	u := c.URL(path)
	ok, err := c.fs.Exists(ctx, u)
	if err != nil || !ok {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	data, err := c.fs.DownloadWithURL(ctx, u)
	if err != nil {
		c.log.Debug("resource download failed", zap.String("url", u), zap.Error(err))
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	return data, nil
}

// ReadText returns the content of path as text, decoded from the configured
// charset when one is set.
func (c *Cache) ReadText(ctx context.Context, path string) (string, error) {
	data, err := c.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	if c.decoder == nil {
		return string(data), nil
	}
	decoded, err := c.decoder.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return string(decoded), nil
}

// Exists reports whether path names an existing file or directory.
func (c *Cache) Exists(ctx context.Context, path string) bool {
	ok, err := c.fs.Exists(ctx, c.URL(path))
	return err == nil && ok
}

// IsDir reports whether path names an existing directory.
func (c *Cache) IsDir(ctx context.Context, path string) bool {
	obj, err := c.fs.Object(ctx, c.URL(path))
	if err != nil {
		return false
	}
	return obj.IsDir()
}

// Store writes content to path, creating parent directories as needed.
func (c *Cache) Store(ctx context.Context, path string, content []byte) error {
	if err := c.fs.Upload(ctx, c.URL(path), 0o644, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}
	return nil
}
