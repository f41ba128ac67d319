package devserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"

	"momofeed/internal/config"
	"momofeed/internal/moderation"
)

const (
	tagStatus = "status"
	tagReason = "reason"

	presignGetTTL = time.Hour
)

// MinioBackend fronts a real bucket. Status and reason live in object
// tags, where the production moderation pipeline writes them.
type MinioBackend struct {
	client  *minio.Client
	bucket  string
	region  string
	slotTTL time.Duration
}

func NewMinioBackend(cfg config.StorageConfig, slotTTL time.Duration) (*MinioBackend, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &MinioBackend{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		slotTTL: slotTTL,
	}, nil
}

func (b *MinioBackend) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", b.bucket, err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", b.bucket, err)
		}
	}
	return nil
}

func (b *MinioBackend) PresignPut(ctx context.Context, key string) (string, error) {
	u, err := b.client.PresignedPutObject(ctx, b.bucket, key, b.slotTTL)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return u.String(), nil
}

func (b *MinioBackend) PresignGet(ctx context.Context, key string) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, presignGetTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return u.String(), nil
}

func (b *MinioBackend) List(ctx context.Context) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		out = append(out, ObjectInfo{
			Key:          obj.Key,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

func (b *MinioBackend) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{Key: info.Key, ETag: info.ETag, LastModified: info.LastModified}, nil
}

func (b *MinioBackend) Tags(ctx context.Context, key string) (moderation.Status, moderation.Reason, error) {
	t, err := b.client.GetObjectTagging(ctx, b.bucket, key, minio.GetObjectTaggingOptions{})
	if err != nil {
		return "", "", fmt.Errorf("get tags %s: %w", key, err)
	}
	m := t.ToMap()
	return moderation.Status(m[tagStatus]), moderation.Reason(m[tagReason]), nil
}

func (b *MinioBackend) SetTags(ctx context.Context, key string, status moderation.Status, reason moderation.Reason) error {
	m := map[string]string{tagStatus: string(status)}
	if reason != "" {
		m[tagReason] = string(reason)
	}
	t, err := tags.NewTags(m, true)
	if err != nil {
		return fmt.Errorf("build tags: %w", err)
	}
	if err := b.client.PutObjectTagging(ctx, b.bucket, key, t, minio.PutObjectTaggingOptions{}); err != nil {
		return fmt.Errorf("put tags %s: %w", key, err)
	}
	return nil
}
