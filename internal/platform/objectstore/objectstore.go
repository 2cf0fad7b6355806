package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yungbote/videorag-backend/internal/platform/envutil"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
)

// Store is the blob-store surface the pipeline depends on. Buckets are
// per-tenant; object keys are derived from artifact coordinates, so writes
// are put-once and safe to repeat.
type Store interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, metadata map[string]string) (string, error)
	PutJSON(ctx context.Context, bucket, key string, payload any) (string, error)
	// GetObject returns (nil, nil) when the object is absent.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	GetJSON(ctx context.Context, bucket, key string, out any) (bool, error)
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// StorageError wraps non-not-found failures from the underlying client.
type StorageError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed (bucket=%s key=%s): %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// URL renders the canonical location of an object, e.g. "s3://bucket/key".
func URL(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// ParseURL splits an "s3://bucket/key" URL into bucket and key.
func ParseURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse object url %q: %w", raw, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("object url %q missing bucket or key", raw)
	}
	return bucket, key, nil
}

type minioStore struct {
	log    *logger.Logger
	client *minio.Client

	mu      sync.Mutex
	ensured map[string]struct{}
}

func NewMinioStore(log *logger.Logger) (Store, error) {
	endpoint := envutil.Str("MINIO_ENDPOINT", "localhost:9000")
	accessKey := envutil.Str("MINIO_ACCESS_KEY", "minioadmin")
	secretKey := envutil.Str("MINIO_SECRET_KEY", "minioadmin")
	useSSL := envutil.Bool("MINIO_USE_SSL", false)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	serviceLog := log.With("service", "MinioStore")
	serviceLog.Info("Minio store configured", "endpoint", endpoint, "ssl", useSSL)
	return &minioStore{
		log:     serviceLog,
		client:  client,
		ensured: map[string]struct{}{},
	}, nil
}

func (s *minioStore) EnsureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	if _, ok := s.ensured[bucket]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return &StorageError{Op: "bucket_exists", Bucket: bucket, Err: err}
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			// Lost race with a concurrent writer is fine.
			if ok, checkErr := s.client.BucketExists(ctx, bucket); checkErr != nil || !ok {
				return &StorageError{Op: "make_bucket", Bucket: bucket, Err: err}
			}
		}
		s.log.Info("Bucket created", "bucket", bucket)
	}

	s.mu.Lock()
	s.ensured[bucket] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *minioStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, metadata map[string]string) (string, error) {
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if len(metadata) > 0 {
		opts.UserMetadata = metadata
	}
	if _, err := s.client.PutObject(ctx, bucket, key, r, size, opts); err != nil {
		return "", &StorageError{Op: "put_object", Bucket: bucket, Key: key, Err: err}
	}
	return URL(bucket, key), nil
}

func (s *minioStore) PutJSON(ctx context.Context, bucket, key string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &StorageError{Op: "encode_json", Bucket: bucket, Key: key, Err: err}
	}
	return s.PutObject(ctx, bucket, key, bytes.NewReader(raw), int64(len(raw)), "application/json", nil)
}

func (s *minioStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &StorageError{Op: "get_object", Bucket: bucket, Key: key, Err: err}
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "read_object", Bucket: bucket, Key: key, Err: err}
	}
	return raw, nil
}

func (s *minioStore) GetJSON(ctx context.Context, bucket, key string, out any) (bool, error) {
	raw, err := s.GetObject(ctx, bucket, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, &StorageError{Op: "decode_json", Bucket: bucket, Key: key, Err: err}
	}
	return true, nil
}

func (s *minioStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &StorageError{Op: "stat_object", Bucket: bucket, Key: key, Err: err}
	}
	return true, nil
}

func (s *minioStore) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return &StorageError{Op: "remove_object", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

func (s *minioStore) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for info := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, &StorageError{Op: "list_objects", Bucket: bucket, Key: prefix, Err: info.Err}
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
