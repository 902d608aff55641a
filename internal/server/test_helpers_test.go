package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/auth"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/database"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/notifications"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/realtime"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testStack struct {
	server   *httptest.Server
	issuer   *auth.TokenIssuer
	users    *users.Service
	store    *notifications.Store
	registry *realtime.Registry
}

func newTestStack(t *testing.T, maxPerUser int) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "tasknotify-auth",
		Audience:      "tasknotify-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}

	store, err := notifications.NewStore(notifications.StoreConfig{Database: db, Users: userService})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	retention, err := notifications.NewRetentionEnforcer(notifications.RetentionConfig{Store: store, MaxPerUser: maxPerUser})
	if err != nil {
		t.Fatalf("failed to create retention enforcer: %v", err)
	}
	registry := realtime.NewRegistry(zap.NewNop())
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherConfig{
		Store:     store,
		Retention: retention,
		Users:     userService,
		Deliverer: registry,
	})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	inbox, err := notifications.NewInbox(notifications.InboxConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to create inbox: %v", err)
	}
	realtimeHandler, err := realtime.NewHandler(realtime.HandlerConfig{
		Registry:     registry,
		Validator:    issuer,
		WriteTimeout: time.Second,
		IdleTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create realtime handler: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenValidator: issuer,
		Inbox:          inbox,
		Dispatcher:     dispatcher,
		Retention:      retention,
		Store:          store,
		Registry:       registry,
		Realtime:       realtimeHandler,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		registry.CloseAll()
		server.Close()
	})
	return &testStack{server: server, issuer: issuer, users: userService, store: store, registry: registry}
}

func (s *testStack) createUser(t *testing.T, empID, role string) (users.User, string) {
	t.Helper()
	user, err := s.users.Create(context.Background(), empID, "User "+empID, role)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	token, _, err := s.issuer.IssueToken(user.ID, user.Role)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return user, token
}

func (s *testStack) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := s.server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response.StatusCode, payload
}

func decode[T any](t *testing.T, payload []byte) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		t.Fatalf("failed to decode %s: %v", string(payload), err)
	}
	return value
}
