package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			BodyLimitMB:    10,
			SessionTTL:     8 * time.Hour,
			AllowedOrigins: "*",
		},
		DB: DBConfig{
			Driver:  DBDriverPostgres,
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "atividades",
			SSLMode: "disable",
			Path:    "atividades.db",
		},
		Storage: StorageConfig{
			Driver:   StorageDriverSupabase,
			Bucket:   "atividade",
			Folder:   "atividade",
			Timeout:  15 * time.Second,
			S3Region: "us-east-1",
		},
		Auth: AuthConfig{
			ServerURL:     "http://localhost:9000",
			ClientID:      "myclientid",
			Timeout:       10 * time.Second,
			OnUnavailable: PolicyDeny,
		},
		Audit: AuditConfig{
			QueueSize: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers struct defaults, an optional YAML file and the environment,
// in that order of increasing priority.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.Auth.OnUnavailable = strings.ToLower(strings.TrimSpace(c.Auth.OnUnavailable))
	c.Auth.ServerURL = strings.TrimRight(c.Auth.ServerURL, "/")
	c.Storage.SupabaseURL = strings.TrimRight(c.Storage.SupabaseURL, "/")
	c.Storage.PublicURL = strings.TrimRight(c.Storage.PublicURL, "/")
	c.Storage.Folder = strings.Trim(c.Storage.Folder, "/")
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"server_port":          "server.port",
	"body_limit_mb":        "server.body_limit_mb",
	"session_ttl":          "server.session_ttl",
	"cors_allowed_origins": "server.allowed_origins",
	"cookie_secure":        "server.cookie_secure",

	"db_driver":   "db.driver",
	"db_host":     "db.host",
	"db_port":     "db.port",
	"db_user":     "db.user",
	"db_password": "db.password",
	"db_name":     "db.name",
	"db_sslmode":  "db.sslmode",
	"db_path":     "db.path",

	"storage_driver":     "storage.driver",
	"supabase_url":       "storage.supabase_url",
	"supabase_anon_key":  "storage.supabase_anon_key",
	"storage_bucket":     "storage.bucket",
	"storage_folder":     "storage.folder",
	"storage_timeout":    "storage.timeout",
	"s3_endpoint":        "storage.s3_endpoint",
	"s3_access_key":      "storage.s3_access_key",
	"s3_secret_key":      "storage.s3_secret_key",
	"s3_region":          "storage.s3_region",
	"s3_use_ssl":         "storage.s3_use_ssl",
	"storage_public_url": "storage.public_url",

	"auth_server_url":     "auth.server_url",
	"auth_client_id":      "auth.client_id",
	"auth_client_secret":  "auth.client_secret",
	"auth_admin_username": "auth.admin_username",
	"auth_admin_password": "auth.admin_password",
	"auth_timeout":        "auth.timeout",
	"auth_on_unavailable": "auth.on_unavailable",

	"audit_queue_size": "audit.queue_size",

	"log_level":  "log.level",
	"log_format": "log.format",
}

// envTransformFunc maps known environment variable names to config paths
// and drops everything else.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
