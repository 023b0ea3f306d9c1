package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/breaker"
	"github.com/atividade/backend/internal/config"
	"github.com/google/uuid"
)

const (
	MsgEmptyFile    = "Arquivo não pode estar vazio"
	MsgNotAnImage   = "Apenas arquivos de imagem são permitidos"
	defaultBaseName = "foto"
)

// PhotoStorage stores album photos and hands back a publicly readable URL.
type PhotoStorage interface {
	Upload(ctx context.Context, data []byte, contentType, originalName string) (string, error)
	// Delete is best effort. Callers log the error and carry on.
	Delete(ctx context.Context, publicURL string) error
}

// ValidatePhoto runs before any network call.
func ValidatePhoto(data []byte, contentType string) error {
	if len(data) == 0 {
		return apperr.Validation(MsgEmptyFile)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return apperr.Validation(MsgNotAnImage)
	}
	return nil
}

// ObjectName returns "<uuid>_<base name>" so two uploads never collide.
func ObjectName(originalName string) string {
	return uuid.New().String() + "_" + sanitizeBaseName(originalName)
}

// ObjectNameFromURL returns the last path segment of a public photo URL.
func ObjectNameFromURL(publicURL string) string {
	raw := strings.TrimSpace(publicURL)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	raw = strings.TrimRight(raw, "/")
	name := raw[strings.LastIndex(raw, "/")+1:]
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

func objectPath(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func sanitizeBaseName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return defaultBaseName
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// New picks the backend named by cfg.Driver.
func New(cfg config.StorageConfig) (PhotoStorage, error) {
	cb := breaker.New("storage", breaker.DefaultSettings())
	switch cfg.Driver {
	case config.StorageDriverSupabase:
		return NewSupabaseClient(cfg, cb), nil
	case config.StorageDriverS3:
		return NewS3Client(cfg, cb)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
