// Package storage keeps fetched profile photos in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/janovincze/entrasync/internal/config"
	"github.com/janovincze/entrasync/internal/entraid"
)

const avatarPrefix = "avatars"

// ErrNoPhoto is returned when Put receives no photo body.
var ErrNoPhoto = errors.New("no photo to store")

// objectStore is the subset of the MinIO client the avatar store needs.
type objectStore interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// AvatarStore stores profile photos keyed by user id.
type AvatarStore struct {
	client objectStore
	bucket string
	logger *slog.Logger
}

// NewAvatarStore creates an avatar store backed by MinIO.
func NewAvatarStore(cfg config.StorageConfig, logger *slog.Logger) (*AvatarStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newAvatarStore(client, cfg.Bucket, logger), nil
}

func newAvatarStore(client objectStore, bucket string, logger *slog.Logger) *AvatarStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvatarStore{
		client: client,
		bucket: bucket,
		logger: logger.With("component", "avatar-store"),
	}
}

// EnsureBucket creates the avatar bucket if it does not exist.
func (s *AvatarStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}

	s.logger.Info("bucket created", "bucket", s.bucket)
	return nil
}

// Ping checks that the bucket is reachable.
func (s *AvatarStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

// Put uploads the photo and returns its object key. The photo body is read
// to the end but not closed.
func (s *AvatarStore) Put(ctx context.Context, userID uuid.UUID, photo *entraid.Photo) (string, error) {
	if photo == nil || photo.Body == nil {
		return "", ErrNoPhoto
	}

	key := ObjectKey(userID, photo.Filename)
	contentType := photo.MediaType
	if contentType == "" {
		contentType = entraid.PhotoMediaType
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, photo.Body, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}

	s.logger.Debug("avatar uploaded", "bucket", s.bucket, "key", key, "size", info.Size)
	return key, nil
}

// ObjectKey returns the object key of a user's photo.
func ObjectKey(userID uuid.UUID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = entraid.DefaultPhotoFilename
	}
	return path.Join(avatarPrefix, userID.String(), name)
}
