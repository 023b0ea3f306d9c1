package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/breaker"
	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/internal/metrics"
	"github.com/atividade/backend/pkg/logger"
)

// SupabaseClient talks to the Supabase Storage REST API with the project's anon key.
type SupabaseClient struct {
	BaseURL    string
	AnonKey    string
	Bucket     string
	Folder     string
	HTTPClient *http.Client
	breaker    *breaker.Breaker
}

func NewSupabaseClient(cfg config.StorageConfig, cb *breaker.Breaker) *SupabaseClient {
	return &SupabaseClient{
		BaseURL:    cfg.SupabaseURL,
		AnonKey:    cfg.SupabaseAnonKey,
		Bucket:     cfg.Bucket,
		Folder:     cfg.Folder,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    cb,
	}
}

func (s *SupabaseClient) objectURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.BaseURL, s.Bucket, objectPath(s.Folder, name))
}

func (s *SupabaseClient) publicURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.BaseURL, s.Bucket, objectPath(s.Folder, name))
}

func (s *SupabaseClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.AnonKey)
	req.Header.Set("apikey", s.AnonKey)
	return req, nil
}

// do sends req and classifies the outcome. Non-2xx becomes KindUpstreamRejected.
func (s *SupabaseClient) do(req *http.Request, op string) error {
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return apperr.Unavailable(op, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Rejected(op, resp.StatusCode, string(data))
	}
	return nil
}

func (s *SupabaseClient) Upload(ctx context.Context, data []byte, contentType, originalName string) (string, error) {
	if err := ValidatePhoto(data, contentType); err != nil {
		return "", err
	}

	name := ObjectName(originalName)
	started := time.Now()
	err := s.breaker.Do("storage.upload", func() error {
		req, err := s.newRequest(ctx, http.MethodPost, s.objectURL(name), bytes.NewReader(data))
		if err != nil {
			return apperr.Internal("storage.upload", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")
		return s.do(req, "storage.upload")
	})

	details := map[string]interface{}{
		"object_name":  name,
		"size":         len(data),
		"content_type": contentType,
		"bucket":       s.Bucket,
	}
	if err != nil {
		metrics.ObserveBridge("storage", "upload", apperr.KindOf(err).String(), started)
		details["upstream_status"] = apperr.UpstreamStatus(err)
		logger.Error("supabase_upload_failed", err, details)
		return "", err
	}

	metrics.ObserveBridge("storage", "upload", "success", started)
	logger.Info("supabase_upload_success", details)
	return s.publicURL(name), nil
}

func (s *SupabaseClient) Delete(ctx context.Context, publicURL string) error {
	name := ObjectNameFromURL(publicURL)
	if name == "" {
		return nil
	}

	started := time.Now()
	err := s.breaker.Do("storage.delete", func() error {
		req, err := s.newRequest(ctx, http.MethodDelete, s.objectURL(name), nil)
		if err != nil {
			return apperr.Internal("storage.delete", err)
		}
		return s.do(req, "storage.delete")
	})

	details := map[string]interface{}{
		"object_name": name,
		"bucket":      s.Bucket,
	}
	if err != nil {
		metrics.ObserveBridge("storage", "delete", apperr.KindOf(err).String(), started)
		logger.Error("supabase_delete_failed", err, details)
		return err
	}

	metrics.ObserveBridge("storage", "delete", "success", started)
	logger.Info("supabase_delete_success", details)
	return nil
}
