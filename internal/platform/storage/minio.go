package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rana-image-tool/internal/config"
	"rana-image-tool/internal/observability"
)

// Archiver copies originals into an S3-compatible bucket before the
// Committer removes them.
type Archiver struct {
	client *minio.Client
	bucket string
	prefix string
	region string
	logger *observability.Logger
	now    func() time.Time
}

// NewArchiver connects to the bucket described by cfg and creates it when it
// does not exist yet.
func NewArchiver(ctx context.Context, cfg config.StorageConfig, logger *observability.Logger) (*Archiver, error) {
	var creds *credentials.Credentials

	// Use AWS credentials chain if no static credentials are provided
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	if logger == nil {
		logger = observability.NewNopLogger()
	}

	a := &Archiver{
		client: client,
		bucket: cfg.BucketName,
		prefix: strings.Trim(cfg.KeyPrefix, "/"),
		region: cfg.Region,
		logger: logger,
		now:    time.Now,
	}

	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}

	if !exists {
		region := a.region
		if region == "" {
			region = "us-east-1"
		}
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}

	return nil
}

// Bucket returns the archive bucket name
func (a *Archiver) Bucket() string {
	return a.bucket
}

// ObjectKey maps a local file onto its archive key:
// [prefix/]YYYY-MM-DD/<absolute path without the leading slash>.
func (a *Archiver) ObjectKey(p string) string {
	local := filepath.ToSlash(p)
	if vol := filepath.VolumeName(p); vol != "" {
		local = strings.TrimPrefix(local, filepath.ToSlash(vol))
	}
	local = strings.TrimLeft(local, "/")

	key := path.Join(a.now().UTC().Format("2006-01-02"), local)
	if a.prefix != "" {
		key = path.Join(a.prefix, key)
	}
	return key
}

// Archive uploads the file at p. It satisfies batch.Archiver.
func (a *Archiver) Archive(ctx context.Context, p string) error {
	key := a.ObjectKey(p)

	info, err := a.client.FPutObject(ctx, a.bucket, key, p, minio.PutObjectOptions{
		ContentType:  ContentType(p),
		UserMetadata: map[string]string{"original-path": p},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", filepath.Base(p), err)
	}

	a.logger.Debug(ctx).
		Str("bucket", a.bucket).
		Str("key", key).
		Int64("size", info.Size).
		Msg("Archived original")
	return nil
}

// Exists reports whether an object with the given key is stored.
func (a *Archiver) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ContentType returns the MIME type archived originals are stored with.
func ContentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
