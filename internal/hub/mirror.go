package hub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when the mirror has no object for a key.
var ErrObjectNotFound = errors.New("object not found")

// MirrorConfig describes an S3-compatible bucket holding pretrained models
// and checkpoints.
type MirrorConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type client interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Download(ctx context.Context, bucket, key, filePath string) error
	Upload(ctx context.Context, bucket, key, filePath string) error
}

// Mirror reads and writes model files in an object store.
type Mirror struct {
	client client
	bucket string
	prefix string
}

// NewMirror connects to the bucket described by cfg.
func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewMirrorWithClient(cfg.Bucket, cfg.Prefix, mc)
}

// NewMirrorWithClient creates a Mirror over an existing client.
func NewMirrorWithClient(bucket, prefix string, c client) (*Mirror, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Mirror{client: c, bucket: strings.TrimSpace(bucket), prefix: cleanPrefix(prefix)}, nil
}

// Bucket returns the bucket name.
func (m *Mirror) Bucket() string {
	return m.bucket
}

// FetchDir downloads every object under <prefix>/<id>/ into dst, keeping the
// relative layout. It returns the number of files written, or
// ErrObjectNotFound when the mirror holds nothing for id.
func (m *Mirror) FetchDir(ctx context.Context, id, dst string) (int, error) {
	dirKey := m.key(id) + "/"
	keys, err := m.client.List(ctx, m.bucket, dirKey)
	if err != nil {
		return 0, fmt.Errorf("list %q: %w", dirKey, err)
	}
	if len(keys) == 0 {
		return 0, ErrObjectNotFound
	}

	n := 0
	for _, key := range keys {
		rel := strings.TrimPrefix(key, dirKey)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		target := filepath.Join(dst, filepath.FromSlash(path.Clean(rel)))
		if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
			return 0, fmt.Errorf("object %q escapes destination", key)
		}
		if err := m.client.Download(ctx, m.bucket, key, target); err != nil {
			return 0, fmt.Errorf("get object %q: %w", key, err)
		}
		n++
	}
	if n == 0 {
		return 0, ErrObjectNotFound
	}
	return n, nil
}

// FetchFile downloads a single object to filePath.
func (m *Mirror) FetchFile(ctx context.Context, key, filePath string) error {
	if err := m.client.Download(ctx, m.bucket, m.key(key), filePath); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("get object %q: %w", m.key(key), err)
	}
	return nil
}

// PutFile uploads filePath under key.
func (m *Mirror) PutFile(ctx context.Context, key, filePath string) error {
	if err := m.client.Upload(ctx, m.bucket, m.key(key), filePath); err != nil {
		return fmt.Errorf("put object %q: %w", m.key(key), err)
	}
	return nil
}

func (m *Mirror) key(name string) string {
	name = strings.Trim(name, "/")
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.Trim(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

func newMinioClient(cfg MirrorConfig) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		return parsed.Host, parsed.Scheme == "https" || useSSL, nil
	}
	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, mapMinioErr(obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (m *minioClient) Download(ctx context.Context, bucket, key, filePath string) error {
	return mapMinioErr(m.client.FGetObject(ctx, bucket, key, filePath, minio.GetObjectOptions{}))
}

func (m *minioClient) Upload(ctx context.Context, bucket, key, filePath string) error {
	_, err := m.client.FPutObject(ctx, bucket, key, filePath, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return mapMinioErr(err)
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return ErrObjectNotFound
		}
	}
	return err
}
