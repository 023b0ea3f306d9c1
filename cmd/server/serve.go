package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/internal/database"
	"github.com/atividade/backend/internal/middleware"
	"github.com/atividade/backend/internal/repository"
	"github.com/atividade/backend/internal/server"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/internal/storage"
	"github.com/atividade/backend/pkg/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Connect(cfg.DB)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		return database.Migrate(db)
	},
}

func runServe() error {
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	photos, err := storage.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	if s3, ok := photos.(*storage.S3Client); ok {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Timeout)
		err := s3.EnsureBucket(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed ensuring storage bucket: %w", err)
		}
	}

	if !cfg.Auth.HasAdminCredential() {
		logger.Warn("auth_admin_credential_missing", map[string]interface{}{
			"effect": "self-service registration will fail",
		})
	}
	if cfg.Auth.FailOpen() {
		logger.Warn("auth_fail_open_enabled", map[string]interface{}{
			"policy": config.PolicyAllow,
		})
	}

	audit := services.NewAuditService(db, cfg.Audit.QueueSize)
	defer audit.Close()

	app, err := server.New(server.Deps{
		Config:     cfg,
		Atividades: services.NewAtividadeService(repository.NewAtividadeRepository(db), photos, audit),
		Auth:       services.NewAuthBridge(cfg.Auth),
		Sessions:   middleware.NewSessionStore(cfg.Server),
	})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("server_starting", map[string]interface{}{
		"port":           cfg.Server.Port,
		"address":        listenAddr,
		"body_limit_mb":  cfg.Server.BodyLimitMB,
		"storage_driver": cfg.Storage.Driver,
		"db_driver":      cfg.DB.Driver,
		"auth_server":    cfg.Auth.ServerURL,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Printf("forced shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
