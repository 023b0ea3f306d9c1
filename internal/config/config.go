package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	DB      DBConfig      `koanf:"db"`
	Storage StorageConfig `koanf:"storage"`
	Auth    AuthConfig    `koanf:"auth"`
	Audit   AuditConfig   `koanf:"audit"`
	Log     LogConfig     `koanf:"log"`
}

type ServerConfig struct {
	Port           string        `koanf:"port"`
	BodyLimitMB    int           `koanf:"body_limit_mb"`
	SessionTTL     time.Duration `koanf:"session_ttl"`
	AllowedOrigins string        `koanf:"allowed_origins"`
	CookieSecure   bool          `koanf:"cookie_secure"`
}

type DBConfig struct {
	Driver   string `koanf:"driver"`
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
	Path     string `koanf:"path"`
}

type StorageConfig struct {
	Driver          string        `koanf:"driver"`
	SupabaseURL     string        `koanf:"supabase_url"`
	SupabaseAnonKey string        `koanf:"supabase_anon_key"`
	Bucket          string        `koanf:"bucket"`
	Folder          string        `koanf:"folder"`
	Timeout         time.Duration `koanf:"timeout"`
	S3Endpoint      string        `koanf:"s3_endpoint"`
	S3AccessKey     string        `koanf:"s3_access_key"`
	S3SecretKey     string        `koanf:"s3_secret_key"`
	S3Region        string        `koanf:"s3_region"`
	S3UseSSL        bool          `koanf:"s3_use_ssl"`
	PublicURL       string        `koanf:"public_url"`
}

type AuthConfig struct {
	ServerURL     string        `koanf:"server_url"`
	ClientID      string        `koanf:"client_id"`
	ClientSecret  string        `koanf:"client_secret"`
	AdminUsername string        `koanf:"admin_username"`
	AdminPassword string        `koanf:"admin_password"`
	Timeout       time.Duration `koanf:"timeout"`
	OnUnavailable string        `koanf:"on_unavailable"`
}

type AuditConfig struct {
	QueueSize int `koanf:"queue_size"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

const (
	StorageDriverSupabase = "supabase"
	StorageDriverS3       = "s3"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	// What the request gate does when the auth server cannot be reached.
	PolicyDeny  = "deny"
	PolicyAllow = "allow"
)

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverSupabase:
		if c.Storage.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required when STORAGE_DRIVER=%s", StorageDriverSupabase)
		}
	case StorageDriverS3:
		if c.Storage.S3Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when STORAGE_DRIVER=%s", StorageDriverS3)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want %s or %s)", c.Storage.Driver, StorageDriverSupabase, StorageDriverS3)
	}

	switch c.DB.Driver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want %s or %s)", c.DB.Driver, DBDriverPostgres, DBDriverSQLite)
	}

	switch c.Auth.OnUnavailable {
	case PolicyDeny, PolicyAllow:
	default:
		return fmt.Errorf("unknown AUTH_ON_UNAVAILABLE %q (want %s or %s)", c.Auth.OnUnavailable, PolicyDeny, PolicyAllow)
	}

	if strings.TrimSpace(c.Auth.ServerURL) == "" {
		return fmt.Errorf("AUTH_SERVER_URL is required")
	}
	if c.Auth.Timeout <= 0 || c.Storage.Timeout <= 0 {
		return fmt.Errorf("AUTH_TIMEOUT and STORAGE_TIMEOUT must be positive")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

// FailOpen reports whether requests pass the gate while the auth server is down.
func (a AuthConfig) FailOpen() bool {
	return a.OnUnavailable == PolicyAllow
}

// HasAdminCredential reports whether self-service registration can work.
func (a AuthConfig) HasAdminCredential() bool {
	return a.AdminUsername != "" && a.AdminPassword != ""
}
