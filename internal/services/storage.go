package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/chachabrian/poolit-backend/internal/config"
)

// Archive stores generated documents and returns where they can be fetched.
type Archive interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// NewArchive picks S3 when AWS credentials are configured and falls back to
// the local upload directory otherwise.
func NewArchive(cfg config.StorageConfig) (Archive, error) {
	if cfg.UseS3() {
		return NewS3Archive(cfg)
	}
	return NewLocalArchive(cfg.UploadDir, cfg.BaseURL)
}

// S3Archive uploads to one bucket.
type S3Archive struct {
	uploader *s3manager.Uploader
	bucket   string
	region   string
}

func NewS3Archive(cfg config.StorageConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name not configured")
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.AWSRegion),
		Credentials: credentials.NewStaticCredentials(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Archive{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		region:   cfg.AWSRegion,
	}, nil
}

func (a *S3Archive) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key), nil
}

// LocalArchive writes under a directory served at BASE_URL/uploads.
type LocalArchive struct {
	dir     string
	baseURL string
}

func NewLocalArchive(dir, baseURL string) (*LocalArchive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalArchive{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (a *LocalArchive) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	clean := filepath.Clean("/" + key)[1:]
	if clean == "" {
		return "", fmt.Errorf("empty archive key")
	}
	path := filepath.Join(a.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create folder directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return fmt.Sprintf("%s/uploads/%s", a.baseURL, filepath.ToSlash(clean)), nil
}
