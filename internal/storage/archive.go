package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ArchivedObject 归档结果
type ArchivedObject struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	URLExpireAt time.Time `json:"urlExpireAt"`
}

// ArchiveStore 导出文件归档
type ArchiveStore interface {
	Put(ctx context.Context, key, filename, contentType string, data []byte) (*ArchivedObject, error)
}

// MinIOArchive 导出归档到 MinIO
type MinIOArchive struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
	logger    *zap.Logger
}

// NewMinIOArchive 根据配置创建 MinIO 客户端；未配置 endpoint 时返回 nil
func NewMinIOArchive(cfg config.MinIOConfig, logger *zap.Logger) (*MinIOArchive, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinIOArchive{
		client:    client,
		bucket:    cfg.Bucket,
		urlExpiry: 24 * time.Hour,
		logger:    logger,
	}, nil
}

// EnsureBucket 桶不存在时创建
func (a *MinIOArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("Created export bucket", zap.String("bucket", a.bucket))
	return nil
}

// Put 上传并生成带下载文件名的预签名链接
func (a *MinIOArchive) Put(ctx context.Context, key, filename, contentType string, data []byte) (*ArchivedObject, error) {
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filename),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	signed, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.urlExpiry, params)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	a.logger.Info("Archived export",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size),
	)
	return &ArchivedObject{
		Bucket:      a.bucket,
		Key:         key,
		Size:        info.Size,
		URL:         signed.String(),
		URLExpireAt: time.Now().Add(a.urlExpiry),
	}, nil
}
