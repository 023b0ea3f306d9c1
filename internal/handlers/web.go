package handlers

import (
	"context"
	"mime/multipart"
	"strings"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/middleware"
	"github.com/atividade/backend/internal/models"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

const (
	msgCreated       = "Atividade criada com sucesso!"
	msgUpdated       = "Atividade atualizada com sucesso!"
	msgDeleted       = "Atividade excluída com sucesso!"
	msgNotFound      = "Atividade não encontrada"
	msgUploadFailed  = "Erro ao fazer upload da foto. Tente novamente."
	msgUnexpectedErr = "Erro inesperado. Tente novamente."
)

// WebHandler serves the server-rendered album pages.
type WebHandler struct {
	Service  *services.AtividadeService
	Sessions *middleware.FiberSessionStore
}

func NewWebHandler(service *services.AtividadeService, sessions *middleware.FiberSessionStore) *WebHandler {
	return &WebHandler{Service: service, Sessions: sessions}
}

func (h *WebHandler) render(c *fiber.Ctx, page string, data fiber.Map) error {
	data["Username"] = middleware.CurrentUsername(c)
	data["Flashes"] = h.Sessions.PopFlashes(c)
	return c.Render(page, data)
}

func (h *WebHandler) flashRedirect(c *fiber.Ctx, kind, message, to string) error {
	if err := h.Sessions.Flash(c, kind, message); err != nil {
		logger.Error("session_flash_failed", err, map[string]interface{}{
			"path": c.Path(),
		})
	}
	return c.Redirect(to, fiber.StatusFound)
}

func (h *WebHandler) renderList(c *fiber.Ctx, title string, atividades []models.Atividade, extra fiber.Map) error {
	stats, err := h.Service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	data := fiber.Map{
		"Title":      title,
		"Atividades": atividades,
		"Stats":      stats,
	}
	for k, v := range extra {
		data[k] = v
	}
	return h.render(c, "index", data)
}

func (h *WebHandler) Index(c *fiber.Ctx) error {
	atividades, err := h.Service.List(c.UserContext())
	if err != nil {
		return err
	}
	return h.renderList(c, "Minhas Atividades", atividades, nil)
}

func (h *WebHandler) NovaForm(c *fiber.Ctx) error {
	return h.render(c, "form", fiber.Map{
		"Title":  "Nova Atividade",
		"Action": "/nova",
	})
}

func (h *WebHandler) Nova(c *fiber.Ctx) error {
	input := services.AtividadeInput{
		Texto:     c.FormValue("texto"),
		Descricao: c.FormValue("descricao"),
	}

	if fh := optionalUpload(c, "foto"); fh != nil {
		url, err := h.uploadPhoto(c, fh)
		if err != nil {
			return h.flashRedirect(c, middleware.FlashError, uploadFailureMessage(err), "/nova")
		}
		input.URLFoto = &url
	}

	if _, err := h.Service.Create(c.UserContext(), input, actorFrom(c)); err != nil {
		if input.URLFoto != nil {
			h.discardPhoto(c.UserContext(), *input.URLFoto)
		}
		return h.flashRedirect(c, middleware.FlashError, apperr.Message(err, msgUnexpectedErr), "/nova")
	}
	return h.flashRedirect(c, middleware.FlashSuccess, msgCreated, "/")
}

func (h *WebHandler) EditarForm(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return h.flashRedirect(c, middleware.FlashError, msgNotFound, "/")
	}
	atividade, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return h.flashRedirect(c, middleware.FlashError, apperr.Message(err, msgUnexpectedErr), "/")
	}
	return h.render(c, "form", fiber.Map{
		"Title":     "Editar Atividade",
		"Action":    "/editar/" + id.String(),
		"Atividade": atividade,
	})
}

// Editar keeps the current photo unless a new file arrives or removerFoto is set.
func (h *WebHandler) Editar(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return h.flashRedirect(c, middleware.FlashError, msgNotFound, "/")
	}
	current, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return h.flashRedirect(c, middleware.FlashError, apperr.Message(err, msgUnexpectedErr), "/")
	}

	input := services.AtividadeInput{
		Texto:     c.FormValue("texto"),
		Descricao: c.FormValue("descricao"),
		URLFoto:   current.URLFoto,
	}
	if c.FormValue("removerFoto") == "true" {
		input.URLFoto = nil
	}

	back := "/editar/" + id.String()
	uploaded := ""
	if fh := optionalUpload(c, "foto"); fh != nil {
		url, err := h.uploadPhoto(c, fh)
		if err != nil {
			return h.flashRedirect(c, middleware.FlashError, uploadFailureMessage(err), back)
		}
		uploaded = url
		input.URLFoto = &uploaded
	}

	if _, err := h.Service.Update(c.UserContext(), id, input, actorFrom(c)); err != nil {
		if uploaded != "" {
			h.discardPhoto(c.UserContext(), uploaded)
		}
		if apperr.Is(err, apperr.KindNotFound) {
			back = "/"
		}
		return h.flashRedirect(c, middleware.FlashError, apperr.Message(err, msgUnexpectedErr), back)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, msgUpdated, "/")
}

func (h *WebHandler) Deletar(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return h.flashRedirect(c, middleware.FlashError, msgNotFound, "/")
	}
	if err := h.Service.Delete(c.UserContext(), id, actorFrom(c)); err != nil {
		return h.flashRedirect(c, middleware.FlashError, apperr.Message(err, msgUnexpectedErr), "/")
	}
	return h.flashRedirect(c, middleware.FlashSuccess, msgDeleted, "/")
}

// Buscar searches by texto when given, else by descricao, else lists all.
func (h *WebHandler) Buscar(c *fiber.Ctx) error {
	texto := strings.TrimSpace(c.Query("texto"))
	descricao := strings.TrimSpace(c.Query("descricao"))

	var (
		atividades []models.Atividade
		err        error
	)
	switch {
	case texto != "":
		atividades, err = h.Service.SearchByTexto(c.UserContext(), texto)
	case descricao != "":
		atividades, err = h.Service.SearchByDescricao(c.UserContext(), descricao)
	default:
		atividades, err = h.Service.List(c.UserContext())
	}
	if err != nil {
		return err
	}
	return h.renderList(c, "Resultados da Busca", atividades, fiber.Map{
		"Texto":     texto,
		"Descricao": descricao,
	})
}

func (h *WebHandler) ComFoto(c *fiber.Ctx) error {
	atividades, err := h.Service.ListComFoto(c.UserContext())
	if err != nil {
		return err
	}
	return h.renderList(c, "Galeria de Fotos", atividades, nil)
}

func (h *WebHandler) uploadPhoto(c *fiber.Ctx, fh *multipart.FileHeader) (string, error) {
	data, contentType, err := readUpload(fh)
	if err != nil {
		return "", err
	}
	return h.Service.UploadPhoto(c.UserContext(), data, contentType, fh.Filename, actorFrom(c))
}

// discardPhoto removes a photo uploaded for a save that then failed.
func (h *WebHandler) discardPhoto(ctx context.Context, url string) {
	if err := h.Service.Storage.Delete(ctx, url); err != nil {
		logger.Warn("photo_discard_failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
	}
}

func uploadFailureMessage(err error) string {
	if apperr.Is(err, apperr.KindValidation) {
		return apperr.Message(err, msgUploadFailed)
	}
	return msgUploadFailed
}
