package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketvendor/vendor-sync/internal/auth"
	"github.com/marketvendor/vendor-sync/internal/database"
	"github.com/marketvendor/vendor-sync/internal/replication"
	"github.com/marketvendor/vendor-sync/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSigningSecret = "test-signing-secret-0123456789"

type stubVerifier struct {
	claims auth.GoogleClaims
	err    error
}

func (s stubVerifier) Verify(context.Context, string) (auth.GoogleClaims, error) {
	if s.err != nil {
		return auth.GoogleClaims{}, s.err
	}
	return s.claims, nil
}

type stubTokenManager struct {
	userID      string
	validateErr error
}

func (s stubTokenManager) IssueSessionToken(context.Context, string) (string, int64, error) {
	return "", 0, errors.New("not implemented")
}

func (s stubTokenManager) ValidateToken(string) (string, error) {
	if s.validateErr != nil {
		return "", s.validateErr
	}
	return s.userID, nil
}

type stubSyncService struct {
	pushErr error
	pullErr error
}

func (s stubSyncService) Push(context.Context, replication.PushRequest) (replication.PushResult, error) {
	return replication.PushResult{}, s.pushErr
}

func (s stubSyncService) Pull(_ context.Context, _ string, cursor int64, _ int) (replication.PullResult, error) {
	return replication.PullResult{Cursor: cursor}, s.pullErr
}

type stubHealthChecker struct {
	err error
}

func (s stubHealthChecker) Check(context.Context) error {
	return s.err
}

type testStack struct {
	handler    http.Handler
	db         *gorm.DB
	tokens     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
}

// newTestStack wires the real services over a migrated SQLite database.
func newTestStack(t *testing.T, verifier GoogleVerifier, bodyLimit int64) testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "server.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	syncService, err := replication.NewService(replication.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct sync service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	if verifier == nil {
		verifier = stubVerifier{err: errors.New("verifier not configured")}
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		GoogleVerifier:    verifier,
		TokenManager:      tokenIssuer,
		Users:             userService,
		Sync:              syncService,
		Health:            database.NewHealthChecker(db),
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		BodyLimitBytes:    bodyLimit,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testStack{handler: handler, db: db, tokens: tokenIssuer, dispatcher: dispatcher}
}

func (s testStack) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.tokens.IssueSessionToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return token
}

func performJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch typed := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(typed))
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

type stubUserResolver struct {
	userID string
}

func (s stubUserResolver) ResolveUserID(context.Context, auth.GoogleClaims) (string, error) {
	return s.userID, nil
}
