package objstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/lumora/supportdesk/internal/config"
)

// Store is the object storage gateway. Presigned PUT URLs let clients move
// bytes to storage without routing them through the API; Put serves the
// relay path for small payloads.
type Store interface {
	// SignedPutURL returns a time-limited URL authorizing a single PUT of
	// the object, plus the public URL the object will be readable at.
	SignedPutURL(ctx context.Context, key, contentType string) (putURL, publicURL string, err error)
	// Put writes the object directly and returns its public URL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Open selects a backend from configuration.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return OpenLocal(cfg)
	case "oss":
		return OpenOSS(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// NewKey builds a collision-free object key preserving the file extension.
func NewKey(prefix, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	key := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	if prefix == "" {
		return key
	}
	return strings.Trim(prefix, "/") + "/" + key
}

func sanitizeKey(key string) string {
	key = strings.TrimLeft(key, "/")
	parts := strings.Split(key, "/")
	clean := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, "/")
}
