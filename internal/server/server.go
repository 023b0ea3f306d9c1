// Package server assembles the fiber application: middleware chain, request
// gate, REST routes and browser pages.
package server

import (
	"errors"

	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/internal/handlers"
	"github.com/atividade/backend/internal/metrics"
	"github.com/atividade/backend/internal/middleware"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/internal/views"
	"github.com/atividade/backend/pkg/logger"
	"github.com/atividade/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const loginAttemptsPerMinute = 20

type Deps struct {
	Config     *config.Config
	Atividades *services.AtividadeService
	Auth       *services.AuthBridge
	Sessions   *middleware.FiberSessionStore
}

func New(d Deps) (*fiber.App, error) {
	engine := views.New()
	if err := engine.Load(); err != nil {
		return nil, err
	}
	assets, err := views.Static()
	if err != nil {
		return nil, err
	}

	bodyLimit := d.Config.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 10
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit * 1024 * 1024,
		Immutable:             true,
		Views:                 engine,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(d.Config.Server.AllowedOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())
	app.Use("/css", filesystem.New(filesystem.Config{Root: assets, PathPrefix: "css"}))
	app.Use("/js", filesystem.New(filesystem.Config{Root: assets, PathPrefix: "js"}))

	gate := middleware.NewGate(d.Auth, d.Sessions, d.Config.Auth.FailOpen())
	app.Use(gate.Handler)

	authHandler := handlers.NewAuthHandler(d.Auth)
	atividadesHandler := handlers.NewAtividadesHandler(d.Atividades)
	webHandler := handlers.NewWebHandler(d.Atividades, d.Sessions)
	webAuthHandler := handlers.NewWebAuthHandler(d.Auth, d.Sessions)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", middleware.LoginLimiter(loginAttemptsPerMinute), authHandler.Login)
	authRoutes.Post("/validate", authHandler.Validate)
	authRoutes.Post("/register", authHandler.Register)

	atividadeRoutes := api.Group("/atividades")
	atividadeRoutes.Get("/", atividadesHandler.List)
	atividadeRoutes.Post("/", atividadesHandler.Create)
	atividadeRoutes.Get("/buscar/texto", atividadesHandler.SearchByTexto)
	atividadeRoutes.Get("/buscar/descricao", atividadesHandler.SearchByDescricao)
	atividadeRoutes.Get("/com-foto", atividadesHandler.ComFoto)
	atividadeRoutes.Get("/estatisticas", atividadesHandler.Estatisticas)
	atividadeRoutes.Post("/upload-foto", atividadesHandler.UploadFoto)
	atividadeRoutes.Get("/:id/historico", atividadesHandler.Historico)
	atividadeRoutes.Get("/:id", atividadesHandler.Get)
	atividadeRoutes.Put("/:id", atividadesHandler.Update)
	atividadeRoutes.Delete("/:id", atividadesHandler.Delete)

	app.Get("/login", webAuthHandler.RedirectToLogin)
	webAuthRoutes := app.Group("/auth")
	webAuthRoutes.Get("/login", webAuthHandler.LoginPage)
	webAuthRoutes.Post("/login", middleware.LoginLimiter(loginAttemptsPerMinute), webAuthHandler.Login)
	webAuthRoutes.Post("/register", webAuthHandler.Register)
	webAuthRoutes.Post("/logout", webAuthHandler.Logout)
	webAuthRoutes.Get("/logout", webAuthHandler.Logout)

	app.Get("/", webHandler.Index)
	app.Get("/nova", webHandler.NovaForm)
	app.Post("/nova", webHandler.Nova)
	app.Get("/editar/:id", webHandler.EditarForm)
	app.Post("/editar/:id", webHandler.Editar)
	app.Post("/deletar/:id", webHandler.Deletar)
	app.Get("/buscar", webHandler.Buscar)
	app.Get("/com-foto", webHandler.ComFoto)

	return app, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
		}
	}
	if code >= fiber.StatusInternalServerError {
		logger.Error("unhandled_error", err, map[string]interface{}{
			"method":     c.Method(),
			"path":       c.Path(),
			"request_id": middleware.RequestID(c),
		})
	}
	return utils.Error(c, code, message)
}
