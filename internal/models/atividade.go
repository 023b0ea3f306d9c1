package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Atividade is one album entry. CreatedAt is written on insert only.
type Atividade struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Texto     string    `json:"texto" gorm:"type:varchar(255)" validate:"max=255"`
	Descricao string    `json:"descricao" gorm:"type:text" validate:"max=1000"`
	URLFoto   *string   `json:"urlFoto" gorm:"column:url_foto;type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;<-:create;index"`

	// Lowercased copies used by the substring searches. SQLite's LOWER only
	// folds ASCII, so folding happens here for every driver.
	TextoBusca     string `json:"-" gorm:"column:texto_busca;type:text;not null;default:''"`
	DescricaoBusca string `json:"-" gorm:"column:descricao_busca;type:text;not null;default:''"`
}

func (a *Atividade) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.FoldSearchKeys()
	return nil
}

// FoldSearchKeys refreshes TextoBusca and DescricaoBusca from the visible fields.
func (a *Atividade) FoldSearchKeys() {
	a.TextoBusca = FoldSearch(a.Texto)
	a.DescricaoBusca = FoldSearch(a.Descricao)
}

func FoldSearch(s string) string {
	return strings.ToLower(s)
}

func (Atividade) TableName() string {
	return "atividade"
}

func (a *Atividade) HasPhoto() bool {
	return a.URLFoto != nil && strings.TrimSpace(*a.URLFoto) != ""
}

// PhotoURL returns the photo URL or "".
func (a *Atividade) PhotoURL() string {
	if a.URLFoto == nil {
		return ""
	}
	return *a.URLFoto
}

// Estatisticas is the counters pair shown on the index page and the REST stats endpoint.
type Estatisticas struct {
	TotalAtividades   int64 `json:"totalAtividades"`
	AtividadesComFoto int64 `json:"atividadesComFoto"`
}
