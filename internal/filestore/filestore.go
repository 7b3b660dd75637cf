// Package filestore implements SPEC_FULL.md §C.9: multi-backend object
// storage for uploaded attachments, local MinIO-compatible or remote COS,
// behind one FileStore interface selected by configuration — mirroring the
// "local vs remote backend" split spec.md already uses for C1. The
// bucket-policy classification helpers are salvaged from the teacher's
// internal/handler/system.go ListMinioBuckets handler (a non-goal admin
// surface on its own, but its policy-parsing logic is worth keeping as the
// store's own visibility check before handing back a public URL).
package filestore

import (
	"context"
	"fmt"
	"io"
	"time"
)

// FileStore is the uniform attachment-storage contract.
type FileStore interface {
	// Put uploads content under key, returning a URL the rest of the system
	// can reference (spec.md §3 FileInfo.URL).
	Put(ctx context.Context, key string, content io.Reader, size int64, contentType string) (url string, err error)
	// Get opens the object stored at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// PresignedURL returns a time-limited signed URL for private objects.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// BucketPolicy mirrors the S3-compatible bucket policy document shape used
// to classify a bucket's visibility before handing back a bare (unsigned)
// URL, salvaged from handler/system.go's ListMinioBuckets.
type BucketPolicy struct {
	Version   string            `json:"Version"`
	Statement []PolicyStatement `json:"Statement"`
}

// PolicyStatement is one S3 bucket-policy statement.
type PolicyStatement struct {
	Effect    string `json:"Effect"`
	Principal any    `json:"Principal"` // "*" or {"AWS": [...]}
	Action    any    `json:"Action"`    // string or []string
	Resource  any    `json:"Resource"`  // string or []string
}

// ClassifyPolicy reports "public", "custom", or "private" for a parsed
// bucket policy, matching handler/system.go's parseBucketPolicy.
func ClassifyPolicy(policy *BucketPolicy) string {
	if policy == nil || len(policy.Statement) == 0 {
		return "private"
	}
	for _, stmt := range policy.Statement {
		if stmt.Effect != "Allow" {
			continue
		}
		if !isPrincipalPublic(stmt.Principal) {
			continue
		}
		if !hasGetObjectAction(stmt.Action) {
			continue
		}
		return "public"
	}
	return "custom"
}

func isPrincipalPublic(principal any) bool {
	switch p := principal.(type) {
	case string:
		return p == "*"
	case map[string]any:
		aws, ok := p["AWS"]
		if !ok {
			return false
		}
		switch a := aws.(type) {
		case string:
			return a == "*"
		case []any:
			for _, v := range a {
				if s, ok := v.(string); ok && s == "*" {
					return true
				}
			}
		}
	}
	return false
}

func hasGetObjectAction(action any) bool {
	const getObject = "s3:GetObject"
	switch a := action.(type) {
	case string:
		return a == getObject || a == "s3:*"
	case []any:
		for _, v := range a {
			if s, ok := v.(string); ok && (s == getObject || s == "s3:*") {
				return true
			}
		}
	}
	return false
}

// NewFileStore selects a backend by config (SPEC_FULL.md §B object storage
// wiring), mirroring modelclient/chat/factory.go's local/remote switch.
func NewFileStore(backend string, minio *MinioStore, cos *COSStore) (FileStore, error) {
	switch backend {
	case "minio", "":
		if minio == nil {
			return nil, fmt.Errorf("filestore: minio backend selected but not configured")
		}
		return minio, nil
	case "cos":
		if cos == nil {
			return nil, fmt.Errorf("filestore: cos backend selected but not configured")
		}
		return cos, nil
	default:
		return nil, fmt.Errorf("filestore: unknown backend %q", backend)
	}
}
