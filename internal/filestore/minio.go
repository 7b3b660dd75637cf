package filestore

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
)

// MinioStore is the local/self-hosted attachment backend (SPEC_FULL.md
// §B), grounded on handler/system.go's `minio.New(endpoint, &minio.Options{
// Creds: credentials.NewStaticV4(...), Secure: useSSL})` construction.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore dials endpoint and ensures bucket exists.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("minio", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("minio", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, rerr.NewBackendUnavailableError("minio", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, content io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, content, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", rerr.NewBackendUnavailableError("minio", err)
	}
	return s.client.EndpointURL().String() + "/" + s.bucket + "/" + key, nil
}

func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("minio", err)
	}
	return obj, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return rerr.NewBackendUnavailableError("minio", err)
	}
	return nil
}

func (s *MinioStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", rerr.NewBackendUnavailableError("minio", err)
	}
	return u.String(), nil
}

// BucketVisibility reports whether the configured bucket currently grants
// public read access, using the policy classification salvaged from
// handler/system.go.
func (s *MinioStore) BucketVisibility(ctx context.Context) (string, error) {
	policyStr, err := s.client.GetBucketPolicy(ctx, s.bucket)
	if err != nil || policyStr == "" {
		return "private", nil
	}
	var policy BucketPolicy
	if err := json.Unmarshal([]byte(policyStr), &policy); err != nil {
		return "custom", nil
	}
	return ClassifyPolicy(&policy), nil
}
