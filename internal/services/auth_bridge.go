package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/breaker"
	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/internal/metrics"
	"github.com/atividade/backend/pkg/logger"
	"golang.org/x/oauth2"
)

// TokenResponse mirrors the auth server's token payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

type RegisterOutcome int

const (
	Registered RegisterOutcome = iota
	AdminAuthFailed
	DuplicateEmail
	MissingField
	Forbidden
	ServerError
)

func (o RegisterOutcome) String() string {
	switch o {
	case Registered:
		return "registered"
	case AdminAuthFailed:
		return "admin_auth_failed"
	case DuplicateEmail:
		return "duplicate_email"
	case MissingField:
		return "missing_field"
	case Forbidden:
		return "forbidden"
	default:
		return "server_error"
	}
}

func (o RegisterOutcome) Message() string {
	switch o {
	case Registered:
		return "Cadastro realizado com sucesso!"
	case AdminAuthFailed:
		return "Erro ao autenticar administrador. Verifique se o auth-server está rodando."
	case DuplicateEmail:
		return "Este e-mail já está cadastrado. Tente fazer login."
	case MissingField:
		return "Informe um e-mail válido e uma senha."
	case Forbidden:
		return "Cadastro requer permissões de administrador."
	default:
		return "Erro ao realizar cadastro. Tente novamente mais tarde."
	}
}

// RegisterResult is always returned. Err holds the underlying cause for logging.
type RegisterResult struct {
	Outcome RegisterOutcome
	Err     error
}

func (r RegisterResult) Success() bool   { return r.Outcome == Registered }
func (r RegisterResult) Message() string { return r.Outcome.Message() }

// AuthBridge delegates identity to the external OAuth2 authorization server.
type AuthBridge struct {
	Cfg        config.AuthConfig
	HTTPClient *http.Client
	oauth      *oauth2.Config
	breaker    *breaker.Breaker
}

func NewAuthBridge(cfg config.AuthConfig) *AuthBridge {
	return &AuthBridge{
		Cfg:        cfg,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.ServerURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		breaker: breaker.New("auth", breaker.DefaultSettings()),
	}
}

// Login exchanges user credentials for a token with the password grant.
// Bad credentials come back as KindUpstreamRejected.
func (b *AuthBridge) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	started := time.Now()
	var tok *oauth2.Token
	err := b.breaker.Do("auth.login", func() error {
		ctx := context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
		t, err := b.oauth.PasswordCredentialsToken(ctx, username, password)
		if err != nil {
			return classifyOAuthError("auth.login", err)
		}
		tok = t
		return nil
	})
	if err != nil {
		metrics.ObserveBridge("auth", "login", apperr.KindOf(err).String(), started)
		logger.Warn("auth_login_failed", map[string]interface{}{
			"username":        username,
			"kind":            apperr.KindOf(err).String(),
			"upstream_status": apperr.UpstreamStatus(err),
			"error":           err.Error(),
		})
		return nil, err
	}

	metrics.ObserveBridge("auth", "login", "success", started)
	return tokenResponseFrom(tok), nil
}

// ValidateToken asks the auth server whether token is live. A definite "no"
// is (false, nil). Anything that prevented an answer is KindUpstreamUnavailable.
func (b *AuthBridge) ValidateToken(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	started := time.Now()
	valid := false
	err := b.breaker.Do("auth.check_token", func() error {
		endpoint := b.Cfg.ServerURL + "/oauth/check_token?token=" + url.QueryEscape(token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return apperr.Internal("auth.check_token", err)
		}
		req.SetBasicAuth(b.Cfg.ClientID, b.Cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := b.HTTPClient.Do(req)
		if err != nil {
			return apperr.Unavailable("auth.check_token", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			valid = true
		case resp.StatusCode >= 500:
			return apperr.Unavailable("auth.check_token", fmt.Errorf("auth server answered %d", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		metrics.ObserveBridge("auth", "check_token", apperr.KindOf(err).String(), started)
		return false, err
	}

	outcome := "success"
	if !valid {
		outcome = "invalid"
	}
	metrics.ObserveBridge("auth", "check_token", outcome, started)
	return valid, nil
}

type managerUser struct {
	Login    string                 `json:"login"`
	Password string                 `json:"password"`
	Roles    []string               `json:"roles"`
	Extra    map[string]interface{} `json:"extra"`
}

// Register creates a ROLE_USER account using the configured admin credential.
func (b *AuthBridge) Register(ctx context.Context, email, password string) RegisterResult {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || password == "" {
		return RegisterResult{Outcome: MissingField, Err: apperr.Validation("email and password are required")}
	}

	if !b.Cfg.HasAdminCredential() {
		return RegisterResult{Outcome: AdminAuthFailed, Err: errors.New("admin credential not configured")}
	}
	admin, err := b.Login(ctx, b.Cfg.AdminUsername, b.Cfg.AdminPassword)
	if err != nil {
		return RegisterResult{Outcome: AdminAuthFailed, Err: err}
	}

	started := time.Now()
	result := RegisterResult{Outcome: Registered}
	err = b.breaker.Do("auth.register", func() error {
		payload, err := json.Marshal(managerUser{
			Login:    strings.ToLower(email),
			Password: password,
			Roles:    []string{"ROLE_USER"},
			Extra:    map[string]interface{}{},
		})
		if err != nil {
			return apperr.Internal("auth.register", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Cfg.ServerURL+"/manager", bytes.NewReader(payload))
		if err != nil {
			return apperr.Internal("auth.register", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+admin.AccessToken)

		resp, err := b.HTTPClient.Do(req)
		if err != nil {
			return apperr.Unavailable("auth.register", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		rejected := apperr.Rejected("auth.register", resp.StatusCode, string(body))
		result = RegisterResult{Outcome: classifyRegisterFailure(resp.StatusCode, body), Err: rejected}
		if resp.StatusCode >= 500 {
			return apperr.Unavailable("auth.register", rejected)
		}
		return nil
	})
	if err != nil && result.Outcome == Registered {
		result = RegisterResult{Outcome: ServerError, Err: err}
	}

	metrics.ObserveBridge("auth", "register", result.Outcome.String(), started)
	details := map[string]interface{}{
		"email":   strings.ToLower(email),
		"outcome": result.Outcome.String(),
	}
	if result.Success() {
		logger.Info("auth_register_success", details)
	} else {
		logger.Warn("auth_register_failed", details)
	}
	return result
}

type upstreamError struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classifyRegisterFailure prefers a structured error code and falls back to
// matching known phrases in the raw body.
func classifyRegisterFailure(status int, body []byte) RegisterOutcome {
	if status == http.StatusForbidden {
		return Forbidden
	}
	if status >= 500 {
		return ServerError
	}

	var structured upstreamError
	if err := json.Unmarshal(body, &structured); err == nil {
		switch strings.ToUpper(structured.Code) {
		case "USER_ALREADY_EXISTS", "DUPLICATE_LOGIN":
			return DuplicateEmail
		case "MISSING_FIELD", "VALIDATION_ERROR":
			return MissingField
		}
	}

	raw := strings.ToLower(string(body))
	switch {
	case status == http.StatusConflict, strings.Contains(raw, "already exists"):
		return DuplicateEmail
	case strings.Contains(raw, "must not be"), strings.Contains(raw, "required"):
		return MissingField
	default:
		return ServerError
	}
}

func classifyOAuthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		if re.Response.StatusCode >= 500 {
			return apperr.Unavailable(op, err)
		}
		return apperr.Rejected(op, re.Response.StatusCode, string(re.Body))
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return apperr.Unavailable(op, err)
	}
	return apperr.Internal(op, err)
}

func tokenResponseFrom(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}
