package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	tokenQueryParameter = "token"

	closeReasonTokenRequired = "Token required"
	closeReasonInvalidToken  = "Invalid token"

	defaultWriteTimeout = 5 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultMessageRate  = rate.Limit(10)
	defaultMessageBurst = 20
	maxInboundBytes     = 4096
)

var (
	errMissingRegistry  = errors.New("realtime: registry is required")
	errMissingValidator = errors.New("realtime: token validator is required")
)

// TokenValidator resolves a bearer credential to the caller's claims.
type TokenValidator interface {
	ValidateToken(token string) (auth.Claims, error)
}

// HandlerConfig describes the dependencies of the live-connection handler.
type HandlerConfig struct {
	Registry       *Registry
	Validator      TokenValidator
	AllowedOrigins []string
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MessageRate    rate.Limit
	MessageBurst   int
	Logger         *zap.Logger
}

// Handler upgrades authenticated requests to live notification channels.
type Handler struct {
	registry     *Registry
	validator    TokenValidator
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	idleTimeout  time.Duration
	messageRate  rate.Limit
	messageBurst int
	logger       *zap.Logger
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Validator == nil {
		return nil, errMissingValidator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &Handler{
		registry:     cfg.Registry,
		validator:    cfg.Validator,
		writeTimeout: cfg.WriteTimeout,
		idleTimeout:  cfg.IdleTimeout,
		messageRate:  cfg.MessageRate,
		messageBurst: cfg.MessageBurst,
		logger:       logger,
	}
	if handler.writeTimeout <= 0 {
		handler.writeTimeout = defaultWriteTimeout
	}
	if handler.idleTimeout <= 0 {
		handler.idleTimeout = defaultIdleTimeout
	}
	if handler.messageRate <= 0 {
		handler.messageRate = defaultMessageRate
	}
	if handler.messageBurst <= 0 {
		handler.messageBurst = defaultMessageBurst
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return handler, nil
}

// originChecker accepts requests without an Origin header and those from an allowed origin.
func originChecker(allowed []string) func(*http.Request) bool {
	origins := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			wildcard = true
		}
		origins[origin] = struct{}{}
	}
	return func(request *http.Request) bool {
		origin := request.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}

func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.logger.Warn("realtime upgrade failed", zap.Error(err))
		return
	}
	socket := newSocketConnection(uuid.NewString(), conn, h.writeTimeout)
	logger := h.logger.With(zap.String("connection_id", socket.ID()))

	token := strings.TrimSpace(request.URL.Query().Get(tokenQueryParameter))
	if token == "" {
		logger.Info("realtime connection rejected", zap.String("reason", closeReasonTokenRequired))
		socket.reject(websocket.CloseUnsupportedData, closeReasonTokenRequired)
		return
	}
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		logger.Info("realtime connection rejected", zap.String("reason", closeReasonInvalidToken), zap.Error(err))
		socket.reject(websocket.CloseUnsupportedData, closeReasonInvalidToken)
		return
	}
	socket.advance(stateAuthenticated)
	logger = logger.With(zap.Uint("user_id", claims.UserID))

	if err := socket.Send(greeting(claims.UserID)); err != nil {
		logger.Warn("realtime greeting failed", zap.Stringer("state", socket.currentState()), zap.Error(err))
		_ = socket.Close()
		return
	}
	if !socket.advance(stateOpen) {
		_ = socket.Close()
		return
	}

	// Registering after the greeting keeps it the first frame on the wire.
	h.registry.Register(claims.UserID, socket)
	defer func() {
		h.registry.Unregister(claims.UserID, socket)
		_ = socket.Close()
		logger.Info("realtime connection closed")
	}()
	logger.Info("realtime connection opened")

	go h.keepAlive(socket, logger)
	h.readLoop(socket, logger)
}

// readLoop answers heartbeat frames until the peer goes away or stays silent past the idle timeout.
func (h *Handler) readLoop(socket *socketConnection, logger *zap.Logger) {
	conn := socket.conn
	conn.SetReadLimit(maxInboundBytes)
	extendDeadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	}
	if err := extendDeadline(); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return extendDeadline()
	})

	limiter := rate.NewLimiter(h.messageRate, h.messageBurst)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug("realtime read ended", zap.Error(err))
			}
			return
		}
		if err := extendDeadline(); err != nil {
			return
		}
		if !limiter.Allow() {
			logger.Debug("realtime inbound message dropped")
			continue
		}

		var message ControlMessage
		if err := json.Unmarshal(data, &message); err != nil {
			logger.Debug("realtime malformed message ignored", zap.Error(err))
			continue
		}
		if message.Type == MessageTypePing {
			if err := socket.Send(ControlMessage{Type: MessageTypePong}); err != nil {
				logger.Debug("realtime pong failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) keepAlive(socket *socketConnection, logger *zap.Logger) {
	ticker := time.NewTicker(h.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-socket.done:
			return
		case <-ticker.C:
			if err := socket.ping(); err != nil {
				logger.Debug("realtime keepalive failed", zap.Error(err))
				_ = socket.Close()
				return
			}
		}
	}
}
