// Package blobstore holds the BlobStore backends for uploaded file bytes.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"filetree/internal/config"
	"filetree/internal/domain/services"
)

// ErrInvalidKey is returned for keys that would escape the store's namespace
var ErrInvalidKey = errors.New("invalid blob key")

// New creates the blob store selected by cfg.Type
func New(ctx context.Context, cfg config.BlobConfig, logger *slog.Logger) (services.BlobStore, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.LocalRoot)
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			KeyPrefix:       cfg.S3KeyPrefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger)
	case "minio":
		return NewMinioStore(ctx, MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}

// checkKey rejects empty, absolute and parent-relative keys
func checkKey(key string) error {
	if key == "" || !filepath.IsLocal(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
