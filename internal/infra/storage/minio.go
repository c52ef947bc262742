package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store archives evidence screenshots in a MinIO/S3 bucket.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	// presign > 0 returns presigned GET urls instead of plain object urls
	presign time.Duration
}

type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PresignTTL, when set, makes Put return presigned urls for private buckets.
	PresignTTL time.Duration
}

// New buat koneksi MinIO dan pastikan bucket ada
func New(ctx context.Context, o Options) (*Store, error) {
	cli, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, o.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", o.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{Region: o.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", o.Bucket, err)
		}
	}

	return &Store{client: cli, bucketName: o.Bucket, region: o.Region, presign: o.PresignTTL}, nil
}

// Put implements audit.EvidenceStore.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	key = strings.TrimLeft(key, "/")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	if s.presign > 0 {
		u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presign, nil)
		if err != nil {
			return "", fmt.Errorf("presign %s: %w", key, err)
		}
		return u.String(), nil
	}
	return ObjectURL(s.client.EndpointURL().Scheme, s.client.EndpointURL().Host, s.bucketName, key), nil
}

// ObjectURL is the public path-style url of an object.
func ObjectURL(scheme, host, bucket, key string) string {
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, host, bucket, strings.TrimLeft(key, "/"))
}

// Check is the readiness probe: the evidence bucket must still exist.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucketName)
	}
	return nil
}
