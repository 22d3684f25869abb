// Package minio stores filings and index snapshots in MinIO.
package minio

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	Prefix    string
}

type Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

func New(opts Options) (*Storage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "create minio client", err)
	}
	return &Storage{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio make bucket: %w", err)
	}
	return nil
}

func (s *Storage) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), data, -1, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapError(key, err)
	}
	return obj, nil
}

func mapError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return domain.WrapError(domain.ErrNotFound, "open object", fmt.Errorf("%s", key))
	}
	return fmt.Errorf("minio get %s: %w", key, err)
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
