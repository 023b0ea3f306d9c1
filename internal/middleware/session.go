package middleware

import (
	"time"

	"github.com/atividade/backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

const (
	sessionCookieName  = "atividades_session"
	sessionTokenKey    = "token"
	sessionUsernameKey = "username"
	flashKeyPrefix     = "flash_"
)

// Flash kinds rendered by the layout template.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

var flashKinds = []string{FlashSuccess, FlashError}

// SessionStore is the view of the browser session the gate depends on.
type SessionStore interface {
	Token(c *fiber.Ctx) (string, error)
	Username(c *fiber.Ctx) string
	Destroy(c *fiber.Ctx) error
}

// FiberSessionStore keeps {token, username, flashes} in fiber's in-memory
// session storage behind an http-only cookie.
type FiberSessionStore struct {
	store *session.Store
}

func NewSessionStore(cfg config.ServerConfig) *FiberSessionStore {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &FiberSessionStore{
		store: session.New(session.Config{
			Expiration:     ttl,
			KeyLookup:      "cookie:" + sessionCookieName,
			CookieHTTPOnly: true,
			CookieSecure:   cfg.CookieSecure,
			CookieSameSite: "Lax",
		}),
	}
}

func (s *FiberSessionStore) Token(c *fiber.Ctx) (string, error) {
	sess, err := s.store.Get(c)
	if err != nil {
		return "", err
	}
	token, _ := sess.Get(sessionTokenKey).(string)
	return token, nil
}

func (s *FiberSessionStore) Username(c *fiber.Ctx) string {
	sess, err := s.store.Get(c)
	if err != nil {
		return ""
	}
	username, _ := sess.Get(sessionUsernameKey).(string)
	return username
}

// Login stores the token under a fresh session id.
func (s *FiberSessionStore) Login(c *fiber.Ctx, token, username string) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(sessionTokenKey, token)
	sess.Set(sessionUsernameKey, username)
	return sess.Save()
}

func (s *FiberSessionStore) Destroy(c *fiber.Ctx) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return err
	}
	return sess.Destroy()
}

// Flash queues a one-shot message for the next rendered page.
func (s *FiberSessionStore) Flash(c *fiber.Ctx, kind, message string) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return err
	}
	sess.Set(flashKeyPrefix+kind, message)
	return sess.Save()
}

// PopFlashes returns and clears the queued messages, keyed by kind.
func (s *FiberSessionStore) PopFlashes(c *fiber.Ctx) map[string]string {
	flashes := map[string]string{}
	sess, err := s.store.Get(c)
	if err != nil {
		return flashes
	}
	for _, kind := range flashKinds {
		if msg, ok := sess.Get(flashKeyPrefix + kind).(string); ok && msg != "" {
			flashes[kind] = msg
			sess.Delete(flashKeyPrefix + kind)
		}
	}
	if len(flashes) > 0 && !sess.Fresh() {
		_ = sess.Save()
	}
	return flashes
}
