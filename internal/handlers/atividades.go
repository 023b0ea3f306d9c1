package handlers

import (
	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/internal/storage"
	"github.com/atividade/backend/pkg/logger"
	"github.com/atividade/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// AtividadesHandler serves the JSON API under /api/atividades.
type AtividadesHandler struct {
	Service *services.AtividadeService
}

func NewAtividadesHandler(service *services.AtividadeService) *AtividadesHandler {
	return &AtividadesHandler{Service: service}
}

func (h *AtividadesHandler) List(c *fiber.Ctx) error {
	atividades, err := h.Service.List(c.UserContext())
	if err != nil {
		return respondError(c, "atividade_list_failed", err)
	}
	return c.JSON(atividades)
}

func (h *AtividadesHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid atividade id")
	}

	atividade, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, "atividade_get_failed", err)
	}
	return c.JSON(atividade)
}

func (h *AtividadesHandler) Create(c *fiber.Ctx) error {
	var input services.AtividadeInput
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	atividade, err := h.Service.Create(c.UserContext(), input, actorFrom(c))
	if err != nil {
		if apperr.Is(err, apperr.KindInternal) {
			return respondError(c, "atividade_create_failed", err)
		}
		return utils.Error(c, fiber.StatusBadRequest, apperr.Message(err, "invalid atividade"))
	}

	logger.Info("atividade_created", map[string]interface{}{
		"atividade_id": atividade.ID.String(),
		"com_foto":     atividade.HasPhoto(),
	})
	return c.Status(fiber.StatusCreated).JSON(atividade)
}

func (h *AtividadesHandler) Update(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid atividade id")
	}

	var input services.AtividadeInput
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	atividade, err := h.Service.Update(c.UserContext(), id, input, actorFrom(c))
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindInternal:
			return respondError(c, "atividade_update_failed", err)
		default:
			return utils.Error(c, fiber.StatusBadRequest, apperr.Message(err, "invalid atividade"))
		}
	}
	return c.JSON(atividade)
}

func (h *AtividadesHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid atividade id")
	}

	if err := h.Service.Delete(c.UserContext(), id, actorFrom(c)); err != nil {
		return respondError(c, "atividade_delete_failed", err)
	}

	logger.Info("atividade_deleted", map[string]interface{}{
		"atividade_id": id.String(),
	})
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AtividadesHandler) SearchByTexto(c *fiber.Ctx) error {
	if !c.Context().QueryArgs().Has("texto") {
		return utils.Error(c, fiber.StatusBadRequest, "query parameter texto is required")
	}
	atividades, err := h.Service.SearchByTexto(c.UserContext(), c.Query("texto"))
	if err != nil {
		return respondError(c, "atividade_search_failed", err)
	}
	return c.JSON(atividades)
}

func (h *AtividadesHandler) SearchByDescricao(c *fiber.Ctx) error {
	if !c.Context().QueryArgs().Has("descricao") {
		return utils.Error(c, fiber.StatusBadRequest, "query parameter descricao is required")
	}
	atividades, err := h.Service.SearchByDescricao(c.UserContext(), c.Query("descricao"))
	if err != nil {
		return respondError(c, "atividade_search_failed", err)
	}
	return c.JSON(atividades)
}

func (h *AtividadesHandler) ComFoto(c *fiber.Ctx) error {
	atividades, err := h.Service.ListComFoto(c.UserContext())
	if err != nil {
		return respondError(c, "atividade_list_failed", err)
	}
	return c.JSON(atividades)
}

// UploadFoto stores the multipart field "arquivo" and answers with the
// public URL as plain text.
func (h *AtividadesHandler) UploadFoto(c *fiber.Ctx) error {
	fh, err := c.FormFile("arquivo")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, storage.MsgEmptyFile)
	}

	data, contentType, err := readUpload(fh)
	if err != nil {
		return respondError(c, "photo_upload_failed", err)
	}

	url, err := h.Service.UploadPhoto(c.UserContext(), data, contentType, fh.Filename, actorFrom(c))
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return utils.Error(c, fiber.StatusBadRequest, apperr.Message(err, "invalid file"))
		}
		logger.Error("photo_upload_failed", err, map[string]interface{}{
			"filename": fh.Filename,
			"size":     len(data),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "Erro ao fazer upload da foto")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(url)
}

func (h *AtividadesHandler) Estatisticas(c *fiber.Ctx) error {
	stats, err := h.Service.Stats(c.UserContext())
	if err != nil {
		return respondError(c, "atividade_stats_failed", err)
	}
	return c.JSON(stats)
}

// Historico returns the audit trail of one record, newest first.
func (h *AtividadesHandler) Historico(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid atividade id")
	}

	logs, err := h.Service.History(c.UserContext(), id, c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, "atividade_history_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, logs)
}
