package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/breaker"
	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/internal/metrics"
	"github.com/atividade/backend/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Client stores photos in any S3-compatible bucket (Supabase's S3
// endpoint, MinIO, AWS). PublicURL is the prefix objects are served from.
type S3Client struct {
	client    *minio.Client
	bucket    string
	folder    string
	publicURL string
	timeout   time.Duration
	breaker   *breaker.Breaker
}

func NewS3Client(cfg config.StorageConfig, cb *breaker.Breaker) (*S3Client, error) {
	transport, err := minio.DefaultTransport(cfg.S3UseSSL)
	if err != nil {
		return nil, err
	}
	transport.ResponseHeaderTimeout = cfg.Timeout

	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure:    cfg.S3UseSSL,
		Region:    cfg.S3Region,
		Transport: transport,
	})
	if err != nil {
		return nil, err
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.S3UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.S3Endpoint, cfg.Bucket)
	}

	return &S3Client{
		client:    client,
		bucket:    cfg.Bucket,
		folder:    cfg.Folder,
		publicURL: publicURL,
		timeout:   cfg.Timeout,
		breaker:   cb,
	}, nil
}

func (m *S3Client) Upload(ctx context.Context, data []byte, contentType, originalName string) (string, error) {
	if err := ValidatePhoto(data, contentType); err != nil {
		return "", err
	}

	name := ObjectName(originalName)
	objectName := objectPath(m.folder, name)
	started := time.Now()

	err := m.breaker.Do("storage.upload", func() error {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		_, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
		return classifyS3Error("storage.upload", err)
	})

	details := map[string]interface{}{
		"object_name":  objectName,
		"size":         len(data),
		"content_type": contentType,
		"bucket":       m.bucket,
	}
	if err != nil {
		metrics.ObserveBridge("storage", "upload", apperr.KindOf(err).String(), started)
		logger.Error("minio_upload_failed", err, details)
		return "", err
	}

	metrics.ObserveBridge("storage", "upload", "success", started)
	logger.Info("minio_upload_success", details)
	return m.publicURL + "/" + objectName, nil
}

func (m *S3Client) Delete(ctx context.Context, publicURL string) error {
	name := ObjectNameFromURL(publicURL)
	if name == "" {
		return nil
	}
	objectName := objectPath(m.folder, name)
	started := time.Now()

	err := m.breaker.Do("storage.delete", func() error {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return classifyS3Error("storage.delete", m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{}))
	})

	details := map[string]interface{}{
		"object_name": objectName,
		"bucket":      m.bucket,
	}
	if err != nil {
		metrics.ObserveBridge("storage", "delete", apperr.KindOf(err).String(), started)
		logger.Error("minio_delete_failed", err, details)
		return err
	}

	metrics.ObserveBridge("storage", "delete", "success", started)
	logger.Info("minio_delete_success", details)
	return nil
}

func (m *S3Client) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
	}
	return nil
}

// classifyS3Error separates answers from the server from transport failures.
func classifyS3Error(op string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 && resp.StatusCode != http.StatusServiceUnavailable {
		return apperr.Rejected(op, resp.StatusCode, resp.Code+": "+resp.Message)
	}
	return apperr.Unavailable(op, err)
}
