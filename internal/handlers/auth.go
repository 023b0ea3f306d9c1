package handlers

import (
	"strings"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/pkg/logger"
	"github.com/atividade/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	msgInvalidCredentials = "Usuário ou senha inválidos"
	msgAuthUnavailable    = "Servidor de autenticação indisponível. Tente novamente mais tarde."
)

// AuthHandler serves /api/auth: token issue, validation and sign-up.
type AuthHandler struct {
	Auth *services.AuthBridge
}

func NewAuthHandler(auth *services.AuthBridge) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type registerRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	token, err := h.Auth.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return utils.Error(c, loginFailureStatus(err), loginFailureMessage(err))
	}

	logger.Info("api_login_success", map[string]interface{}{
		"username": req.Username,
		"ip":       c.IP(),
	})
	return c.JSON(token)
}

// Validate answers 200 for a live token and 401 otherwise, including when
// the auth server could not be asked.
func (h *AuthHandler) Validate(c *fiber.Ctx) error {
	token := c.Query("token")
	valid, err := h.Auth.ValidateToken(c.UserContext(), token)
	if err != nil {
		logger.Warn("token_validate_unavailable", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	if err != nil || !valid {
		return c.Status(fiber.StatusUnauthorized).SendString("Token inválido")
	}
	return c.Status(fiber.StatusOK).SendString("Token válido")
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	result := h.Auth.Register(c.UserContext(), req.Email, req.Password)
	if result.Err != nil && !result.Success() {
		logger.Warn("api_register_failed", map[string]interface{}{
			"outcome": result.Outcome.String(),
			"error":   result.Err.Error(),
		})
	}
	return utils.Outcome(c, registerStatus(result.Outcome), result.Success(), result.Message())
}

func registerStatus(outcome services.RegisterOutcome) int {
	switch outcome {
	case services.Registered:
		return fiber.StatusCreated
	case services.MissingField:
		return fiber.StatusBadRequest
	case services.DuplicateEmail:
		return fiber.StatusConflict
	default:
		return fiber.StatusBadGateway
	}
}

func loginFailureStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindUpstreamRejected:
		return fiber.StatusUnauthorized
	case apperr.KindUpstreamUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func loginFailureMessage(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindUpstreamRejected:
		return msgInvalidCredentials
	case apperr.KindUpstreamUnavailable:
		return msgAuthUnavailable
	default:
		return "Erro ao realizar login"
	}
}
