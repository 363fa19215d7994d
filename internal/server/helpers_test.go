package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/auth"
	"github.com/MarcoPoloResearchLab/leafnotes/internal/cache"
	"github.com/MarcoPoloResearchLab/leafnotes/internal/database"
	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "app_session"
)

type testEnvironment struct {
	handler    http.Handler
	issuer     *auth.TokenIssuer
	realtime   *RealtimeDispatcher
	workspaces *WorkspaceRegistry
	remote     *database.RemoteStore
	cache      *cache.Memory
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "leafnotes.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	remote, err := database.NewRemoteStore(database.RemoteStoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct remote store: %v", err)
	}
	memory := cache.NewMemory()
	workspaces, err := NewWorkspaceRegistry(WorkspaceRegistryConfig{
		Remote:     remote,
		Cache:      memory,
		IDProvider: notes.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct workspace registry: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator:  validator,
		Workspaces:        workspaces,
		Realtime:          realtime,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnvironment{
		handler:    handler,
		issuer:     issuer,
		realtime:   realtime,
		workspaces: workspaces,
		remote:     remote,
		cache:      memory,
	}
}

func (env *testEnvironment) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := env.issuer.IssueSessionToken(userID, userID+"@example.com", "")
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return token
}

func (env *testEnvironment) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, recorder.Code, recorder.Body.String())
	}
}
