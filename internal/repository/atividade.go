package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	newestFirst   = "created_at DESC"
	withPhotoCond = "url_foto IS NOT NULL AND url_foto <> ''"
)

var ErrAtividadeNotFound = apperr.NotFound("Atividade não encontrada")

type AtividadeRepository struct {
	DB *gorm.DB
}

func NewAtividadeRepository(db *gorm.DB) *AtividadeRepository {
	return &AtividadeRepository{DB: db}
}

func (r *AtividadeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Atividade, error) {
	var atividade models.Atividade
	if err := r.DB.WithContext(ctx).First(&atividade, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAtividadeNotFound
		}
		return nil, fmt.Errorf("find atividade %s: %w", id, err)
	}
	return &atividade, nil
}

func (r *AtividadeRepository) FindAllOrderByCreatedAtDesc(ctx context.Context) ([]models.Atividade, error) {
	atividades := []models.Atividade{}
	if err := r.DB.WithContext(ctx).Order(newestFirst).Find(&atividades).Error; err != nil {
		return nil, fmt.Errorf("list atividades: %w", err)
	}
	return atividades, nil
}

func (r *AtividadeRepository) FindByTextoContainingIgnoreCase(ctx context.Context, texto string) ([]models.Atividade, error) {
	return r.findContaining(ctx, "texto_busca", texto)
}

func (r *AtividadeRepository) FindByDescricaoContainingIgnoreCase(ctx context.Context, descricao string) ([]models.Atividade, error) {
	return r.findContaining(ctx, "descricao_busca", descricao)
}

// findContaining matches term as a literal, case-insensitive substring of a
// folded search column.
func (r *AtividadeRepository) findContaining(ctx context.Context, column, term string) ([]models.Atividade, error) {
	atividades := []models.Atividade{}
	pattern := "%" + escapeLike(models.FoldSearch(term)) + "%"
	err := r.DB.WithContext(ctx).
		Where(fmt.Sprintf("%s LIKE ? ESCAPE '\\'", column), pattern).
		Order(newestFirst).
		Find(&atividades).Error
	if err != nil {
		return nil, fmt.Errorf("search atividades by %s: %w", column, err)
	}
	return atividades, nil
}

func (r *AtividadeRepository) FindComFoto(ctx context.Context) ([]models.Atividade, error) {
	atividades := []models.Atividade{}
	if err := r.DB.WithContext(ctx).Where(withPhotoCond).Order(newestFirst).Find(&atividades).Error; err != nil {
		return nil, fmt.Errorf("list atividades with photo: %w", err)
	}
	return atividades, nil
}

func (r *AtividadeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Atividade{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count atividades: %w", err)
	}
	return count, nil
}

func (r *AtividadeRepository) CountComFoto(ctx context.Context) (int64, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Atividade{}).Where(withPhotoCond).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count atividades with photo: %w", err)
	}
	return count, nil
}

func (r *AtividadeRepository) Create(ctx context.Context, atividade *models.Atividade) error {
	if err := r.DB.WithContext(ctx).Create(atividade).Error; err != nil {
		return fmt.Errorf("create atividade: %w", err)
	}
	return nil
}

// Save writes the mutable fields of an existing row. created_at is never touched.
func (r *AtividadeRepository) Save(ctx context.Context, atividade *models.Atividade) error {
	atividade.FoldSearchKeys()
	err := r.DB.WithContext(ctx).
		Model(&models.Atividade{}).
		Where("id = ?", atividade.ID).
		Updates(map[string]interface{}{
			"texto":           atividade.Texto,
			"descricao":       atividade.Descricao,
			"url_foto":        atividade.URLFoto,
			"texto_busca":     atividade.TextoBusca,
			"descricao_busca": atividade.DescricaoBusca,
		}).Error
	if err != nil {
		return fmt.Errorf("save atividade %s: %w", atividade.ID, err)
	}
	return nil
}

func (r *AtividadeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.DB.WithContext(ctx).Delete(&models.Atividade{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete atividade %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAtividadeNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
