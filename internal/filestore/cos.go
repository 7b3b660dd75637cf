package filestore

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
)

// COSStore is the remote/cloud attachment backend (SPEC_FULL.md §B),
// polymorphic with MinioStore the same way C1's chat clients split local
// vs. remote providers.
type COSStore struct {
	client    *cos.Client
	secretID  string
	secretKey string
}

// NewCOSStore builds a client against bucketURL (the bucket's full COS
// endpoint, e.g. "https://bucket-appid.cos.ap-guangzhou.myqcloud.com").
func NewCOSStore(bucketURL, secretID, secretKey string) (*COSStore, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("cos", err)
	}
	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{SecretID: secretID, SecretKey: secretKey},
	})
	return &COSStore{client: client, secretID: secretID, secretKey: secretKey}, nil
}

func (s *COSStore) Put(ctx context.Context, key string, content io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.Object.Put(ctx, key, content, &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: contentType, ContentLength: int(size)},
	})
	if err != nil {
		return "", rerr.NewBackendUnavailableError("cos", err)
	}
	return s.client.Object.GetObjectURL(key).String(), nil
}

func (s *COSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("cos", err)
	}
	return resp.Body, nil
}

func (s *COSStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Object.Delete(ctx, key); err != nil {
		return rerr.NewBackendUnavailableError("cos", err)
	}
	return nil
}

func (s *COSStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.Object.GetPresignedURL(ctx, http.MethodGet, key, s.secretID, s.secretKey, expiry, nil)
	if err != nil {
		return "", rerr.NewBackendUnavailableError("cos", err)
	}
	return u.String(), nil
}
