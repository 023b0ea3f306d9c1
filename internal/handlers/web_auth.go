package handlers

import (
	"strings"

	"github.com/atividade/backend/internal/middleware"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/pkg/logger"
	"github.com/atividade/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// WebAuthHandler serves the browser login, sign-up and logout flows.
type WebAuthHandler struct {
	Auth     *services.AuthBridge
	Sessions *middleware.FiberSessionStore
}

func NewWebAuthHandler(auth *services.AuthBridge, sessions *middleware.FiberSessionStore) *WebAuthHandler {
	return &WebAuthHandler{Auth: auth, Sessions: sessions}
}

func (h *WebAuthHandler) RedirectToLogin(c *fiber.Ctx) error {
	return c.Redirect("/auth/login", fiber.StatusFound)
}

func (h *WebAuthHandler) LoginPage(c *fiber.Ctx) error {
	return c.Render("auth", fiber.Map{
		"Title":   "Entrar",
		"Flashes": h.Sessions.PopFlashes(c),
	})
}

func (h *WebAuthHandler) Login(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	if username == "" || password == "" {
		return h.fail(c, msgInvalidCredentials)
	}

	token, err := h.Auth.Login(c.UserContext(), username, password)
	if err != nil {
		return h.fail(c, loginFailureMessage(err))
	}

	if err := h.Sessions.Login(c, token.AccessToken, username); err != nil {
		logger.Error("session_login_failed", err, map[string]interface{}{
			"username": username,
		})
		return h.fail(c, msgUnexpectedErr)
	}

	logger.InfoWithUser(username, "web_login_success", map[string]interface{}{
		"ip": c.IP(),
	})
	return c.Redirect("/", fiber.StatusFound)
}

// Register answers JSON to scripted callers and flashes otherwise.
func (h *WebAuthHandler) Register(c *fiber.Ctx) error {
	result := h.Auth.Register(c.UserContext(), c.FormValue("email"), c.FormValue("password"))

	if utils.WantsJSON(c) {
		status := fiber.StatusOK
		if !result.Success() {
			status = fiber.StatusBadRequest
		}
		return utils.Outcome(c, status, result.Success(), result.Message())
	}

	kind := middleware.FlashSuccess
	if !result.Success() {
		kind = middleware.FlashError
	}
	if err := h.Sessions.Flash(c, kind, result.Message()); err != nil {
		logger.Error("session_flash_failed", err, nil)
	}
	return c.Redirect("/auth/login", fiber.StatusFound)
}

func (h *WebAuthHandler) Logout(c *fiber.Ctx) error {
	username := h.Sessions.Username(c)
	if err := h.Sessions.Destroy(c); err != nil {
		logger.Error("session_destroy_failed", err, nil)
	}
	if username != "" {
		logger.InfoWithUser(username, "web_logout", nil)
	}
	return c.Redirect("/login", fiber.StatusFound)
}

func (h *WebAuthHandler) fail(c *fiber.Ctx, message string) error {
	if err := h.Sessions.Flash(c, middleware.FlashError, message); err != nil {
		logger.Error("session_flash_failed", err, nil)
	}
	return c.Redirect("/auth/login", fiber.StatusFound)
}
