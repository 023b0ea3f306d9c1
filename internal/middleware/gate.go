package middleware

import (
	"context"
	"strings"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/metrics"
	"github.com/atividade/backend/pkg/logger"
	"github.com/atividade/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	usernameKey = "username"
	loginPath   = "/auth/login"
)

// TokenValidator answers whether a bearer token is live. An error means the
// question could not be answered.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (bool, error)
}

var publicPaths = map[string]bool{
	"/login":         true,
	"/auth/login":    true,
	"/auth/register": true,
	"/auth/logout":   true,
	"/error":         true,
	"/favicon.ico":   true,
	"/health":        true,
	"/metrics":       true,
}

var publicPrefixes = []string{"/css/", "/js/", "/api/auth/"}

// IsPublicPath reports whether path bypasses token validation.
func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Gate admits a request only when it carries a token the auth server
// accepts: a bearer header under /api/, the session token elsewhere.
type Gate struct {
	Validator TokenValidator
	Sessions  SessionStore
	FailOpen  bool
}

func NewGate(validator TokenValidator, sessions SessionStore, failOpen bool) *Gate {
	return &Gate{Validator: validator, Sessions: sessions, FailOpen: failOpen}
}

func (g *Gate) Handler(c *fiber.Ctx) error {
	path := c.Path()
	if IsPublicPath(path) {
		metrics.GateDecisions.WithLabelValues("public").Inc()
		return c.Next()
	}
	if strings.HasPrefix(path, "/api/") {
		return g.checkBearer(c)
	}
	return g.checkSession(c)
}

func (g *Gate) checkBearer(c *fiber.Ctx) error {
	token, ok := utils.BearerToken(c)
	if !ok {
		metrics.GateDecisions.WithLabelValues("rejected").Inc()
		logger.Warn("gate_missing_bearer", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing or invalid authorization header")
	}

	valid, err := g.Validator.ValidateToken(c.UserContext(), token)
	if err != nil {
		if g.FailOpen {
			return g.failOpen(c, err)
		}
		metrics.GateDecisions.WithLabelValues("rejected").Inc()
		logger.Warn("gate_auth_unavailable", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "authentication service unavailable")
	}
	if !valid {
		metrics.GateDecisions.WithLabelValues("rejected").Inc()
		logger.Warn("gate_invalid_token", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	metrics.GateDecisions.WithLabelValues("allowed").Inc()
	c.Locals(usernameKey, "api")
	return c.Next()
}

func (g *Gate) checkSession(c *fiber.Ctx) error {
	token, err := g.Sessions.Token(c)
	if err != nil || token == "" {
		metrics.GateDecisions.WithLabelValues("redirected").Inc()
		return c.Redirect(loginPath, fiber.StatusFound)
	}
	username := g.Sessions.Username(c)

	valid, err := g.Validator.ValidateToken(c.UserContext(), token)
	if err != nil {
		if g.FailOpen {
			c.Locals(usernameKey, username)
			return g.failOpen(c, err)
		}
		metrics.GateDecisions.WithLabelValues("redirected").Inc()
		logger.Warn("gate_auth_unavailable", map[string]interface{}{
			"ip":       c.IP(),
			"path":     c.Path(),
			"username": username,
			"error":    err.Error(),
		})
		return c.Redirect(loginPath, fiber.StatusFound)
	}
	if !valid {
		metrics.GateDecisions.WithLabelValues("redirected").Inc()
		if err := g.Sessions.Destroy(c); err != nil {
			logger.Error("session_destroy_failed", err, map[string]interface{}{
				"path": c.Path(),
			})
		}
		return c.Redirect(loginPath, fiber.StatusFound)
	}

	metrics.GateDecisions.WithLabelValues("allowed").Inc()
	c.Locals(usernameKey, username)
	return c.Next()
}

func (g *Gate) failOpen(c *fiber.Ctx, err error) error {
	metrics.GateDecisions.WithLabelValues("fail_open").Inc()
	logger.Warn("auth_fail_open", map[string]interface{}{
		"ip":    c.IP(),
		"path":  c.Path(),
		"kind":  apperr.KindOf(err).String(),
		"error": err.Error(),
	})
	return c.Next()
}

// CurrentUsername returns the name the gate stored for this request.
func CurrentUsername(c *fiber.Ctx) string {
	name, _ := c.Locals(usernameKey).(string)
	return name
}
