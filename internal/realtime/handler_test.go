package realtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/auth"
	"github.com/gorilla/websocket"
)

type stubValidator struct {
	tokens map[string]uint
}

func (v stubValidator) ValidateToken(token string) (auth.Claims, error) {
	userID, ok := v.tokens[token]
	if !ok {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	return auth.Claims{UserID: userID, Role: "user"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	registry := NewRegistry(nil)
	handler, err := NewHandler(HandlerConfig{
		Registry:       registry,
		Validator:      stubValidator{tokens: map[string]uint{"token-9": 9, "token-10": 10}},
		AllowedOrigins: []string{"http://localhost:4200"},
		WriteTimeout:   time.Second,
		IdleTimeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, registry
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications" + query
	conn, response, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if response.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected handshake status %d", response.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readGreeting(t *testing.T, conn *websocket.Conn) ConnectionMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var message ConnectionMessage
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("failed to read greeting: %v", err)
	}
	return message
}

func waitFor(t *testing.T, condition func() bool, description string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func expectClose(t *testing.T, conn *websocket.Conn, code int, reason string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != code || closeErr.Text != reason {
		t.Fatalf("expected close %d %q, got %d %q", code, reason, closeErr.Code, closeErr.Text)
	}
}

func TestHandlerGreetsAndRegistersAuthenticatedConnection(t *testing.T) {
	server, registry := newTestServer(t)
	conn := dial(t, server, "?token=token-9")

	greeting := readGreeting(t, conn)
	if greeting.Type != MessageTypeConnection || greeting.Message != "Connected successfully" || greeting.UserID != 9 {
		t.Fatalf("unexpected greeting: %#v", greeting)
	}
	waitFor(t, func() bool { return registry.IsConnected(9) }, "user 9 to be registered")
}

func TestHandlerWritesGreetingBeforeAnyNotification(t *testing.T) {
	server, registry := newTestServer(t)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				registry.Send(9, map[string]any{"type": "notification"})
				time.Sleep(time.Millisecond)
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})

	conn := dial(t, server, "?token=token-9")
	greeting := readGreeting(t, conn)
	if greeting.Type != MessageTypeConnection {
		t.Fatalf("expected the greeting as the first frame, got %#v", greeting)
	}
	waitFor(t, func() bool { return registry.IsConnected(9) }, "user 9 to be registered")
}

func TestHandlerAnswersPing(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "?token=token-9")
	readGreeting(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("failed to write malformed frame: %v", err)
	}
	if err := conn.WriteJSON(ControlMessage{Type: MessageTypePing}); err != nil {
		t.Fatalf("failed to write ping: %v", err)
	}
	var reply ControlMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("failed to read pong: %v", err)
	}
	if reply.Type != MessageTypePong {
		t.Fatalf("expected pong, got %q", reply.Type)
	}
}

func TestHandlerDeliversRegistryPayloads(t *testing.T) {
	server, registry := newTestServer(t)
	conn := dial(t, server, "?token=token-9")
	readGreeting(t, conn)
	waitFor(t, func() bool { return registry.IsConnected(9) }, "user 9 to be registered")

	if !registry.Send(9, map[string]any{"type": "notification", "data": map[string]string{"title": "T"}}) {
		t.Fatalf("expected send to succeed")
	}
	var frame struct {
		Type string `json:"type"`
		Data struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read notification frame: %v", err)
	}
	if frame.Type != "notification" || frame.Data.Title != "T" {
		t.Fatalf("unexpected frame: %#v", frame)
	}
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	server, registry := newTestServer(t)
	conn := dial(t, server, "")

	expectClose(t, conn, websocket.CloseUnsupportedData, "Token required")
	if registry.ConnectedCount() != 0 {
		t.Fatalf("did not expect a registration")
	}
}

func TestHandlerRejectsInvalidToken(t *testing.T) {
	server, registry := newTestServer(t)
	conn := dial(t, server, "?token=forged")

	expectClose(t, conn, websocket.CloseUnsupportedData, "Invalid token")
	if registry.ConnectedCount() != 0 {
		t.Fatalf("did not expect a registration")
	}
}

func TestHandlerUnregistersOnClientClose(t *testing.T) {
	server, registry := newTestServer(t)
	conn := dial(t, server, "?token=token-10")
	readGreeting(t, conn)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()

	waitFor(t, func() bool { return !registry.IsConnected(10) }, "user 10 to be unregistered")
}

func TestHandlerNewConnectionReplacesOld(t *testing.T) {
	server, registry := newTestServer(t)
	first := dial(t, server, "?token=token-9")
	readGreeting(t, first)
	second := dial(t, server, "?token=token-9")
	readGreeting(t, second)

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatalf("expected replaced connection to be closed by the server")
	}
	if !registry.IsConnected(9) {
		t.Fatalf("expected replacement connection to stay registered")
	}

	if !registry.Send(9, ControlMessage{Type: "marker"}) {
		t.Fatalf("expected send to reach the replacement connection")
	}
	var frame ControlMessage
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := second.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read on replacement connection: %v", err)
	}
	if frame.Type != "marker" {
		t.Fatalf("unexpected frame %#v", frame)
	}
}

func TestOriginCheckerAllowsConfiguredOrigins(t *testing.T) {
	check := originChecker([]string{"http://localhost:4200"})

	request := httptest.NewRequest(http.MethodGet, "/ws/notifications", http.NoBody)
	if !check(request) {
		t.Fatalf("expected request without origin to pass")
	}
	request.Header.Set("Origin", "http://localhost:4200")
	if !check(request) {
		t.Fatalf("expected configured origin to pass")
	}
	request.Header.Set("Origin", "http://evil.example")
	if check(request) {
		t.Fatalf("expected unknown origin to be rejected")
	}
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHandler(HandlerConfig{Validator: stubValidator{}}); err == nil {
		t.Fatalf("expected error for missing registry")
	}
	if _, err := NewHandler(HandlerConfig{Registry: NewRegistry(nil)}); err == nil {
		t.Fatalf("expected error for missing validator")
	}
}
