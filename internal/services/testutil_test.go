package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/atividade/backend/internal/models"
	"github.com/atividade/backend/internal/repository"
	"github.com/atividade/backend/internal/storage"
	"github.com/atividade/backend/pkg/logger"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Init()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Atividade{}, &models.AuditLog{}))
	return db
}

// fakePhotoStorage records calls and never touches the network.
type fakePhotoStorage struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	uploadErr error
	deleteErr error
}

func (f *fakePhotoStorage) Upload(_ context.Context, data []byte, contentType, originalName string) (string, error) {
	if err := storage.ValidatePhoto(data, contentType); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	url := "https://cdn.test/atividade/" + storage.ObjectName(originalName)
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakePhotoStorage) Delete(_ context.Context, publicURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, publicURL)
	return f.deleteErr
}

func (f *fakePhotoStorage) deletedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func newTestAtividadeService(t *testing.T) (*AtividadeService, *fakePhotoStorage, *AuditService) {
	t.Helper()
	db := setupServiceTestDB(t)
	photos := &fakePhotoStorage{}
	audit := NewAuditService(db, 100)
	t.Cleanup(audit.Close)
	return NewAtividadeService(repository.NewAtividadeRepository(db), photos, audit), photos, audit
}

// fakeAuthServer speaks the subset of the OAuth2 server the bridge uses.
type fakeAuthServer struct {
	mu           sync.Mutex
	users        map[string]string
	tokens       map[string]string
	adminToken   string
	managerCalls int
	lastManager  map[string]any
	managerReply func(w http.ResponseWriter)
	down         bool
}

const (
	testClientID     = "myclientid"
	testClientSecret = "myclientsecret"
	testAdminUser    = "admin@test.com"
	testAdminPass    = "admin-pass"
)

func newFakeAuthServer(t *testing.T) (*fakeAuthServer, *httptest.Server) {
	t.Helper()
	f := &fakeAuthServer{
		users:      map[string]string{"user@test.com": "secret", testAdminUser: testAdminPass},
		tokens:     map[string]string{},
		adminToken: "",
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAuthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case "/oauth/token":
		id, secret, ok := r.BasicAuth()
		if !ok || id != testClientID || secret != testClientSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
		if r.PostForm.Get("grant_type") != "password" || f.users[username] != password || password == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad credentials"}`))
			return
		}
		token := "token-" + strings.ReplaceAll(username, "@", "-at-")
		f.tokens[token] = username
		if username == testAdminUser {
			f.adminToken = token
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  token,
			"token_type":    "bearer",
			"refresh_token": "refresh-" + token,
			"expires_in":    3600,
			"scope":         "read write",
		})
	case "/oauth/check_token":
		id, secret, ok := r.BasicAuth()
		if !ok || id != testClientID || secret != testClientSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, known := f.tokens[r.URL.Query().Get("token")]; !known {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"active":true}`))
	case "/manager":
		f.managerCalls++
		if r.Header.Get("Authorization") != "Bearer "+f.adminToken || f.adminToken == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.lastManager = payload
		if f.managerReply != nil {
			f.managerReply(w)
			return
		}
		login, _ := payload["login"].(string)
		if _, exists := f.users[login]; exists {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`User ` + login + ` already exists`))
			return
		}
		f.users[login], _ = payload["password"].(string)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"login":"` + login + `"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

var errBoom = errors.New("boom")
