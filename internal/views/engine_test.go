package views

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/atividade/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func loadedEngine(t *testing.T) *Engine {
	t.Helper()
	engine := New()
	if err := engine.Load(); err != nil {
		t.Fatalf("failed loading templates: %v", err)
	}
	return engine
}

func TestEngine_RenderIndex(t *testing.T) {
	engine := loadedEngine(t)
	url := "https://cdn.test/atividade/praia.png"

	var buf bytes.Buffer
	err := engine.Render(&buf, "index", fiber.Map{
		"Title":    "Minhas Atividades",
		"Username": "maria",
		"Flashes":  map[string]string{"success": "Atividade criada com sucesso!"},
		"Stats":    models.Estatisticas{TotalAtividades: 2, AtividadesComFoto: 1},
		"Atividades": []models.Atividade{
			{ID: uuid.New(), Texto: "Praia <b>", URLFoto: &url, CreatedAt: time.Now()},
			{ID: uuid.New(), Texto: "Sem foto"},
		},
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"Minhas Atividades",
		"2 atividades, 1 com foto",
		"Atividade criada com sucesso!",
		`src="https://cdn.test/atividade/praia.png"`,
		"Praia &lt;b&gt;",
		"maria",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected rendered page to contain %q", want)
		}
	}
	if strings.Count(html, "<img") != 1 {
		t.Errorf("expected exactly one image, got %d", strings.Count(html, "<img"))
	}
}

func TestEngine_RenderFormAndAuth(t *testing.T) {
	engine := loadedEngine(t)

	var buf bytes.Buffer
	err := engine.Render(&buf, "form", fiber.Map{
		"Title":     "Editar Atividade",
		"Action":    "/editar/123",
		"Atividade": &models.Atividade{Texto: "Antigo", Descricao: "desc"},
	})
	if err != nil {
		t.Fatalf("render form failed: %v", err)
	}
	if !strings.Contains(buf.String(), `action="/editar/123"`) || !strings.Contains(buf.String(), `value="Antigo"`) {
		t.Fatalf("form not filled: %s", buf.String())
	}

	buf.Reset()
	if err := engine.Render(&buf, "auth", fiber.Map{"Title": "Entrar"}); err != nil {
		t.Fatalf("render auth failed: %v", err)
	}
	if !strings.Contains(buf.String(), `action="/auth/register"`) {
		t.Fatal("expected register form on auth page")
	}
}

func TestEngine_UnknownTemplate(t *testing.T) {
	engine := loadedEngine(t)
	if err := engine.Render(&bytes.Buffer{}, "missing", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestStatic(t *testing.T) {
	fs, err := Static()
	if err != nil {
		t.Fatalf("static failed: %v", err)
	}
	for _, name := range []string{"/css/style.css", "/js/app.js"} {
		f, err := fs.Open(name)
		if err != nil {
			t.Fatalf("expected %s to be embedded: %v", name, err)
		}
		_ = f.Close()
	}
}
