package objstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	oss "github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/lumora/supportdesk/internal/config"
)

type ossStore struct {
	bk   *oss.Bucket
	base string
	ttl  time.Duration
}

// OpenOSS builds the aliyun OSS backend.
func OpenOSS(cfg config.StorageConfig) (Store, error) {
	cli, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bk, err := cli.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.%s", cfg.OSSBucket, cfg.OSSEndpoint)
	}
	return &ossStore{bk: bk, base: base, ttl: cfg.SignTTL()}, nil
}

func (s *ossStore) SignedPutURL(_ context.Context, key, contentType string) (string, string, error) {
	key = sanitizeKey(key)
	opts := []oss.Option{}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	putURL, err := s.bk.SignURL(key, oss.HTTPPut, int64(s.ttl/time.Second), opts...)
	if err != nil {
		return "", "", err
	}
	return putURL, s.base + "/" + key, nil
}

func (s *ossStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	key = sanitizeKey(key)
	opts := []oss.Option{}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if err := s.bk.PutObject(key, r, opts...); err != nil {
		return "", err
	}
	return s.base + "/" + key, nil
}
