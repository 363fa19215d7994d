package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/auth"
	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

func TestAuthorizeRequestLogLevels(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
	}{
		{name: "expired", err: auth.ErrExpiredSessionToken, wantLevel: zapcore.InfoLevel},
		{name: "missing", err: auth.ErrMissingSessionToken, wantLevel: zapcore.InfoLevel},
		{name: "tampered", err: errors.New("signature mismatch"), wantLevel: zapcore.WarnLevel},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			ctx.Request = httptest.NewRequest(http.MethodGet, "/categories", http.NoBody)

			core, logs := observer.New(zapcore.DebugLevel)
			handler := &httpHandler{
				sessions: stubSessionValidator{err: testCase.err},
				logger:   zap.New(core),
			}

			handler.authorizeRequest(ctx)

			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
			}
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected exactly one log entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.wantLevel {
				t.Fatalf("expected %s level, got %s", testCase.wantLevel, entries[0].Level)
			}
			if entries[0].Message != "session validation failed" {
				t.Fatalf("unexpected log message: %q", entries[0].Message)
			}
		})
	}
}

func TestAuthorizeRequestStoresPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/categories", http.NoBody)

	handler := &httpHandler{
		sessions: stubSessionValidator{claims: auth.SessionClaims{UserID: "google:abc"}},
		logger:   zap.NewNop(),
	}
	handler.authorizeRequest(ctx)

	principal, ok := principalFrom(ctx)
	if !ok {
		t.Fatalf("expected principal in context")
	}
	if principal != notes.UserID("abc") {
		t.Fatalf("unexpected principal %q", principal)
	}
}

func TestAuthorizeRequestRejectsClaimsWithoutSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/categories", http.NoBody)

	handler := &httpHandler{
		sessions: stubSessionValidator{claims: auth.SessionClaims{}},
		logger:   zap.NewNop(),
	}
	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
	if _, ok := principalFrom(ctx); ok {
		t.Fatalf("did not expect a principal in context")
	}
}
