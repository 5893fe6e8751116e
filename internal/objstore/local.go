package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/lumora/supportdesk/internal/config"
)

// LocalStore keeps objects on the local filesystem and authorizes direct
// PUTs with short-lived HMAC grant tokens. The API itself serves as the
// storage endpoint for this backend.
type LocalStore struct {
	root    string
	base    string
	secret  []byte
	signTTL time.Duration
}

// ErrGrantInvalid is returned when a presigned PUT carries a bad token.
var ErrGrantInvalid = errors.New("storage grant invalid")

// OpenLocal builds the filesystem backend.
func OpenLocal(cfg config.StorageConfig) (*LocalStore, error) {
	if cfg.LocalSecret == "" {
		return nil, errors.New("local storage secret required")
	}
	if err := os.MkdirAll(cfg.LocalRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{
		root:    cfg.LocalRoot,
		base:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		secret:  []byte(cfg.LocalSecret),
		signTTL: cfg.SignTTL(),
	}, nil
}

type grantClaims struct {
	Key         string `json:"key"`
	Method      string `json:"method"`
	ContentType string `json:"content_type"`
	jwt.RegisteredClaims
}

// SignedPutURL issues a grant token embedded in the PUT URL.
func (s *LocalStore) SignedPutURL(_ context.Context, key, contentType string) (string, string, error) {
	key = sanitizeKey(key)
	claims := &grantClaims{
		Key:         key,
		Method:      "PUT",
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.signTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", err
	}
	putURL := fmt.Sprintf("%s/storage/%s?token=%s", s.base, key, url.QueryEscape(token))
	return putURL, s.PublicURL(key), nil
}

// Put writes the object through the relay path.
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	key = sanitizeKey(key)
	if err := s.Write(key, r); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

// VerifyPutGrant checks a grant token against the requested key and returns
// the content type the upload must declare.
func (s *LocalStore) VerifyPutGrant(token, key string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &grantClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrGrantInvalid
	}
	claims, ok := parsed.Claims.(*grantClaims)
	if !ok || !parsed.Valid {
		return "", ErrGrantInvalid
	}
	if claims.Method != "PUT" || claims.Key != sanitizeKey(key) {
		return "", ErrGrantInvalid
	}
	return claims.ContentType, nil
}

// Write stores object bytes under the root directory.
func (s *LocalStore) Write(key string, r io.Reader) error {
	target := filepath.Join(s.root, filepath.FromSlash(sanitizeKey(key)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	return f.Sync()
}

// ObjectPath resolves the filesystem location for a stored object.
func (s *LocalStore) ObjectPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(sanitizeKey(key)))
}

// PublicURL returns the read URL for a key.
func (s *LocalStore) PublicURL(key string) string {
	return s.base + "/storage/" + sanitizeKey(key)
}
