package handlers

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/middleware"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/pkg/logger"
	"github.com/atividade/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	futils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func actorFrom(c *fiber.Ctx) services.Actor {
	return services.Actor{
		Name:      futils.CopyString(middleware.CurrentUsername(c)),
		IP:        futils.CopyString(c.IP()),
		RequestID: futils.CopyString(middleware.RequestID(c)),
	}
}

// respondError writes the error envelope with the default status for err.
// Internal details never reach the client.
func respondError(c *fiber.Ctx, action string, err error) error {
	status := apperr.HTTPStatus(err)
	message := apperr.Message(err, "internal server error")
	if status >= fiber.StatusInternalServerError {
		logger.Error(action, err, map[string]interface{}{
			"path":       c.Path(),
			"request_id": middleware.RequestID(c),
		})
		if apperr.KindOf(err) == apperr.KindInternal {
			message = "internal server error"
		}
	}
	return utils.Error(c, status, message)
}

// readUpload returns the bytes and declared content type of a multipart file.
func readUpload(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", apperr.Internal("read upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", apperr.Internal("read upload", err)
	}
	return data, fh.Header.Get(fiber.HeaderContentType), nil
}

// optionalUpload returns nil when the form carried no file under field.
func optionalUpload(c *fiber.Ctx, field string) *multipart.FileHeader {
	fh, err := c.FormFile(field)
	if err != nil || fh == nil {
		return nil
	}
	if fh.Filename == "" && fh.Size == 0 {
		return nil
	}
	return fh
}
