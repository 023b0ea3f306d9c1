package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/models"
	"github.com/atividade/backend/internal/repository"
	"github.com/atividade/backend/internal/storage"
	"github.com/atividade/backend/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// AtividadeInput is the client-supplied part of a record.
type AtividadeInput struct {
	Texto     string  `json:"texto" form:"texto" validate:"max=255"`
	Descricao string  `json:"descricao" form:"descricao" validate:"max=1000"`
	URLFoto   *string `json:"urlFoto" form:"urlFoto"`
}

// Actor identifies who triggered a change, for the audit trail.
type Actor struct {
	Name      string
	IP        string
	RequestID string
}

type AtividadeService struct {
	Repo    *repository.AtividadeRepository
	Storage storage.PhotoStorage
	Audit   *AuditService
}

func NewAtividadeService(repo *repository.AtividadeRepository, photos storage.PhotoStorage, audit *AuditService) *AtividadeService {
	return &AtividadeService{Repo: repo, Storage: photos, Audit: audit}
}

func (s *AtividadeService) List(ctx context.Context) ([]models.Atividade, error) {
	return s.Repo.FindAllOrderByCreatedAtDesc(ctx)
}

func (s *AtividadeService) Get(ctx context.Context, id uuid.UUID) (*models.Atividade, error) {
	return s.Repo.FindByID(ctx, id)
}

func (s *AtividadeService) Create(ctx context.Context, input AtividadeInput, actor Actor) (*models.Atividade, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	atividade := &models.Atividade{
		Texto:     input.Texto,
		Descricao: input.Descricao,
		URLFoto:   normalizeURL(input.URLFoto),
	}
	if err := s.Repo.Create(ctx, atividade); err != nil {
		return nil, err
	}

	s.audit(actor, models.AuditActionCreate, &atividade.ID, map[string]interface{}{
		"texto":    atividade.Texto,
		"com_foto": atividade.HasPhoto(),
	})
	return atividade, nil
}

// Update replaces texto, descricao and urlFoto. id and createdAt are kept.
// A photo that is no longer referenced is removed from storage.
// A missing id is reported before the input is validated.
func (s *AtividadeService) Update(ctx context.Context, id uuid.UUID, input AtividadeInput, actor Actor) (*models.Atividade, error) {
	atividade, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := validateInput(input); err != nil {
		return nil, err
	}

	previousURL := atividade.PhotoURL()
	atividade.Texto = input.Texto
	atividade.Descricao = input.Descricao
	atividade.URLFoto = normalizeURL(input.URLFoto)

	if err := s.Repo.Save(ctx, atividade); err != nil {
		return nil, err
	}

	if previousURL != "" && previousURL != atividade.PhotoURL() {
		s.deletePhoto(ctx, previousURL, id)
	}

	s.audit(actor, models.AuditActionUpdate, &atividade.ID, map[string]interface{}{
		"texto":        atividade.Texto,
		"foto_trocada": previousURL != atividade.PhotoURL(),
	})
	return atividade, nil
}

// Delete removes the photo first (best effort) and then the row.
func (s *AtividadeService) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	atividade, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if atividade.HasPhoto() {
		s.deletePhoto(ctx, atividade.PhotoURL(), id)
	}

	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}

	s.audit(actor, models.AuditActionDelete, &id, map[string]interface{}{
		"texto": atividade.Texto,
	})
	return nil
}

// SearchByTexto lists everything when texto is blank.
func (s *AtividadeService) SearchByTexto(ctx context.Context, texto string) ([]models.Atividade, error) {
	if strings.TrimSpace(texto) == "" {
		return s.List(ctx)
	}
	return s.Repo.FindByTextoContainingIgnoreCase(ctx, texto)
}

// SearchByDescricao lists everything when descricao is blank.
func (s *AtividadeService) SearchByDescricao(ctx context.Context, descricao string) ([]models.Atividade, error) {
	if strings.TrimSpace(descricao) == "" {
		return s.List(ctx)
	}
	return s.Repo.FindByDescricaoContainingIgnoreCase(ctx, descricao)
}

func (s *AtividadeService) ListComFoto(ctx context.Context) ([]models.Atividade, error) {
	return s.Repo.FindComFoto(ctx)
}

func (s *AtividadeService) Count(ctx context.Context) (int64, error) {
	return s.Repo.Count(ctx)
}

func (s *AtividadeService) CountComFoto(ctx context.Context) (int64, error) {
	return s.Repo.CountComFoto(ctx)
}

func (s *AtividadeService) Stats(ctx context.Context) (models.Estatisticas, error) {
	total, err := s.Repo.Count(ctx)
	if err != nil {
		return models.Estatisticas{}, err
	}
	comFoto, err := s.Repo.CountComFoto(ctx)
	if err != nil {
		return models.Estatisticas{}, err
	}
	return models.Estatisticas{TotalAtividades: total, AtividadesComFoto: comFoto}, nil
}

// UploadPhoto validates and stores a photo, returning its public URL.
func (s *AtividadeService) UploadPhoto(ctx context.Context, data []byte, contentType, name string, actor Actor) (string, error) {
	if err := storage.ValidatePhoto(data, contentType); err != nil {
		return "", err
	}

	url, err := s.Storage.Upload(ctx, data, contentType, name)
	if err != nil {
		return "", err
	}

	s.audit(actor, models.AuditActionPhotoUpload, nil, map[string]interface{}{
		"url":          url,
		"size":         len(data),
		"content_type": contentType,
	})
	return url, nil
}

// History returns the audit trail of one record.
func (s *AtividadeService) History(ctx context.Context, id uuid.UUID, limit int) ([]models.AuditLog, error) {
	if _, err := s.Repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if s.Audit == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.Audit.Recent(id, limit)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", id, err)
	}
	return logs, nil
}

func (s *AtividadeService) deletePhoto(ctx context.Context, url string, id uuid.UUID) {
	if s.Storage == nil {
		return
	}
	if err := s.Storage.Delete(ctx, url); err != nil {
		logger.Warn("photo_delete_failed", map[string]interface{}{
			"atividade_id": id.String(),
			"url":          url,
			"error":        err.Error(),
		})
	}
}

func (s *AtividadeService) audit(actor Actor, action string, resourceID *uuid.UUID, details map[string]interface{}) {
	if s.Audit == nil {
		return
	}
	s.Audit.LogAsync(AuditEntry{
		Actor:      actor.Name,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  actor.IP,
		RequestID:  actor.RequestID,
	})
}

func validateInput(input AtividadeInput) error {
	err := getValidator().Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "max" {
			return apperr.Validation(fmt.Sprintf("%s deve ter no máximo %s caracteres", strings.ToLower(fe.Field()), fe.Param()))
		}
		return apperr.Validation(fmt.Sprintf("%s inválido", strings.ToLower(fe.Field())))
	}
	return apperr.Internal("validate atividade", err)
}

func normalizeURL(u *string) *string {
	if u == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*u)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
