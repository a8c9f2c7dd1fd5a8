// Package storage copies finished session directories into object storage.
// Backends (GCS, in-memory) implement ObjectStore.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

// ObjectStore writes a single object and returns its URI.
type ObjectStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Uploader implements crawler.ArtifactUploader. Objects are named
// <prefix>/<sessionKey>/<path relative to the session directory>.
type Uploader struct {
	store  ObjectStore
	prefix string
	logger *zap.Logger
}

var _ crawler.ArtifactUploader = (*Uploader)(nil)

// NewUploader wraps store.
func NewUploader(store ObjectStore, prefix string, logger *zap.Logger) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// Upload walks dir and writes every regular file. Hidden files (in-flight
// temp files) are skipped.
func (u *Uploader) Upload(ctx context.Context, dir string, sessionKey string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("session directory is required")
	}
	if strings.TrimSpace(sessionKey) == "" {
		return fmt.Errorf("session key is required")
	}

	var uploaded int
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := u.ObjectName(sessionKey, rel)
		if err := u.put(ctx, p, name); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", dir, err)
	}
	u.logger.Info("session artifacts uploaded", zap.String("session", sessionKey), zap.Int("objects", uploaded))
	return nil
}

func (u *Uploader) put(ctx context.Context, file, name string) error {
	f, err := os.Open(file) // #nosec G304 -- file comes from walking the session directory.
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	uri, err := u.store.PutObject(ctx, name, ContentType(file), f)
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	u.logger.Debug("uploaded object", zap.String("uri", uri))
	return nil
}

// ObjectName joins the prefix, session key and relative path with slashes.
func (u *Uploader) ObjectName(sessionKey, rel string) string {
	return path.Join(u.prefix, sessionKey, filepath.ToSlash(rel))
}

// ContentType guesses the MIME type of a session artifact from its extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".png":
		return "image/png"
	case ".webm":
		return "video/webm"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
