// Package attachments stores stage documents (weighment slips, bilty
// scans, invoice copies) in S3-compatible object storage, with metadata
// rows linking each object to a dispatch event and stage.
package attachments

import (
	"context"
	"fmt"
	"io"
	"time"

	"orderflow_backend/platform/apperr"
	"orderflow_backend/platform/config"
	"orderflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage wraps the MinIO client for attachment objects.
type Storage struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
}

// NewStorage connects to MinIO and ensures the attachment bucket exists.
func NewStorage(ctx context.Context, cfg config.MinIOConfig, log *logger.Logger) (*Storage, error) {
	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, apperr.StorageUnavailable("failed to connect to object storage", err)
	}

	bucket := cfg.GetMinioBucketStageAttachments()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, apperr.StorageUnavailable("failed to check attachment bucket", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, apperr.StorageUnavailable("failed to create attachment bucket", err)
		}
	}

	return &Storage{client: client, bucket: bucket, log: log}, nil
}

// objectKey namespaces objects by dispatch event and stage so a listing
// of one consignment's documents is a single prefix scan.
func objectKey(dispatchID int64, stage string, filename string) string {
	return fmt.Sprintf("dispatch/%d/%s/%s-%s", dispatchID, stage, uuid.NewString(), filename)
}

// Put uploads one attachment object and returns its object key.
func (s *Storage) Put(ctx context.Context, dispatchID int64, stage, filename, contentType string, size int64, r io.Reader) (string, error) {
	key := objectKey(dispatchID, stage, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperr.StorageUnavailable("failed to store attachment", err)
	}
	return key, nil
}

// PresignedURL returns a short-lived download link for an object.
func (s *Storage) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", apperr.StorageUnavailable("failed to presign attachment", err)
	}
	return u.String(), nil
}

// Remove deletes an object.
func (s *Storage) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.StorageUnavailable("failed to delete attachment", err)
	}
	return nil
}
