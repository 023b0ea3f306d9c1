package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/internal/middleware"
	"github.com/atividade/backend/internal/models"
	"github.com/atividade/backend/internal/repository"
	"github.com/atividade/backend/internal/services"
	"github.com/atividade/backend/internal/storage"
	"github.com/atividade/backend/pkg/logger"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	testUser      = "user@test.com"
	testPassword  = "secret"
	testAdmin     = "admin@test.com"
	testAdminPass = "admin-pass"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	auth     *fakeAuthServer
	supabase *fakeSupabase
	audit    *services.AuditService
}

type envOption func(*config.Config)

func withFailOpen() envOption {
	return func(cfg *config.Config) { cfg.Auth.OnUnavailable = config.PolicyAllow }
}

func setupTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger.Init()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.Atividade{}, &models.AuditLog{}); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	authFake := newFakeAuthServer()
	authSrv := httptest.NewServer(authFake)
	t.Cleanup(authSrv.Close)

	supabaseFake := &fakeSupabase{objects: map[string][]byte{}}
	supabaseSrv := httptest.NewServer(supabaseFake)
	t.Cleanup(supabaseSrv.Close)
	supabaseFake.baseURL = supabaseSrv.URL

	cfg := &config.Config{
		Server: config.ServerConfig{
			BodyLimitMB:    10,
			SessionTTL:     time.Hour,
			AllowedOrigins: "*",
		},
		Storage: config.StorageConfig{
			Driver:          config.StorageDriverSupabase,
			SupabaseURL:     supabaseSrv.URL,
			SupabaseAnonKey: "anon-key",
			Bucket:          "atividade",
			Folder:          "atividade",
			Timeout:         5 * time.Second,
		},
		Auth: config.AuthConfig{
			ServerURL:     authSrv.URL,
			ClientID:      "myclientid",
			ClientSecret:  "myclientsecret",
			AdminUsername: testAdmin,
			AdminPassword: testAdminPass,
			Timeout:       5 * time.Second,
			OnUnavailable: config.PolicyDeny,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	photos, err := storage.New(cfg.Storage)
	if err != nil {
		t.Fatalf("failed creating storage: %v", err)
	}
	audit := services.NewAuditService(db, 100)
	t.Cleanup(audit.Close)

	app, err := New(Deps{
		Config:     cfg,
		Atividades: services.NewAtividadeService(repository.NewAtividadeRepository(db), photos, audit),
		Auth:       services.NewAuthBridge(cfg.Auth),
		Sessions:   middleware.NewSessionStore(cfg.Server),
	})
	if err != nil {
		t.Fatalf("failed building app: %v", err)
	}

	return &testEnv{app: app, db: db, auth: authFake, supabase: supabaseFake, audit: audit}
}

// fakeAuthServer implements the token, introspection and user-management
// endpoints of the OAuth2 server.
type fakeAuthServer struct {
	mu     sync.Mutex
	users  map[string]string
	tokens map[string]string
	down   bool
}

func newFakeAuthServer() *fakeAuthServer {
	return &fakeAuthServer{
		users:  map[string]string{testUser: testPassword, testAdmin: testAdminPass},
		tokens: map[string]string{},
	}
}

func (f *fakeAuthServer) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
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
		_ = r.ParseForm()
		username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
		if password == "" || f.users[username] != password {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		token := "tok-" + strings.ReplaceAll(username, "@", ".")
		f.tokens[token] = username
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"expires_in":   3600,
			"scope":        "read write",
		})
	case "/oauth/check_token":
		if _, ok := f.tokens[r.URL.Query().Get("token")]; !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"active":true}`))
	case "/manager":
		if f.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")] != testAdmin {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var payload struct {
			Login    string `json:"login"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if _, exists := f.users[payload.Login]; exists {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"USER_ALREADY_EXISTS","error":"user already exists"}`))
			return
		}
		f.users[payload.Login] = payload.Password
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// fakeSupabase stores objects in memory behind the Storage REST paths.
type fakeSupabase struct {
	mu        sync.Mutex
	baseURL   string
	objects   map[string][]byte
	uploads   int
	deletes   []string
	failWrite bool
}

func (f *fakeSupabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")
	switch r.Method {
	case http.MethodPost:
		f.uploads++
		if f.failWrite {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"bucket not found"}`))
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		_, _ = w.Write([]byte(`{"Key":"` + key + `"}`))
	case http.MethodDelete:
		f.deletes = append(f.deletes, key)
		if f.failWrite {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		delete(f.objects, key)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeSupabase) counts() (uploads, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, len(f.deletes)
}

func (f *fakeSupabase) setFailWrite(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrite = fail
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}
	return performRequest(t, app, method, path, body, requestHeaders)
}

func performFormRequest(t *testing.T, app *fiber.App, path string, form url.Values, headers map[string]string) *http.Response {
	t.Helper()
	requestHeaders := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	return performRequest(t, app, http.MethodPost, path, strings.NewReader(form.Encode()), requestHeaders)
}

type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, file *filePart) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing field: %v", err)
		}
	}
	if file != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.filename+`"`)
		header.Set("Content-Type", file.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed creating part: %v", err)
		}
		_, _ = part.Write(file.data)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}
	return payload
}

func decodeJSONList(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload []map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON list: %v body=%q", err, string(raw))
	}
	return payload
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}
	return string(raw)
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	assertStatus(t, resp, http.StatusFound)
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

// apiToken logs in through the REST endpoint and returns the bearer token.
func apiToken(t *testing.T, env *testEnv) string {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]string{
		"username": testUser,
		"password": testPassword,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	token, _ := decodeJSONMap(t, resp)["access_token"].(string)
	if token == "" {
		t.Fatal("expected access_token in login response")
	}
	return token
}

func sessionCookieFrom(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "atividades_session" {
			return cookie.Name + "=" + cookie.Value
		}
	}
	t.Fatal("expected session cookie")
	return ""
}

// browserLogin signs in through the form and returns the Cookie header value.
func browserLogin(t *testing.T, env *testEnv) string {
	t.Helper()
	resp := performFormRequest(t, env.app, "/auth/login", url.Values{
		"username": {testUser},
		"password": {testPassword},
	}, nil)
	assertRedirect(t, resp, "/")
	return sessionCookieFrom(t, resp)
}
