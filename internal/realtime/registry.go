package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Connection is a live, user-bound channel the registry can write to.
type Connection interface {
	ID() string
	Send(payload any) error
	Close() error
}

// Registry maps each user to at most one live connection. The most recent
// registration wins.
type Registry struct {
	mu          sync.RWMutex
	connections map[uint]Connection
	logger      *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connections: make(map[uint]Connection),
		logger:      logger,
	}
}

// Register binds the connection to the user, closing any connection it replaces.
func (r *Registry) Register(userID uint, conn Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	previous := r.connections[userID]
	r.connections[userID] = conn
	r.mu.Unlock()

	if previous != nil && previous != conn {
		r.logger.Info("realtime connection replaced",
			zap.Uint("user_id", userID),
			zap.String("connection_id", previous.ID()),
			zap.String("replacement_id", conn.ID()))
		_ = previous.Close()
	}
}

// Unregister removes the entry only while it still points at conn.
func (r *Registry) Unregister(userID uint, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.connections[userID]
	if !ok || current != conn {
		return false
	}
	delete(r.connections, userID)
	return true
}

// Send writes the payload to the user's connection. A failed write evicts and
// closes that connection. It reports whether the payload was written.
func (r *Registry) Send(userID uint, payload any) bool {
	r.mu.RLock()
	conn := r.connections[userID]
	r.mu.RUnlock()
	if conn == nil {
		return false
	}

	if err := conn.Send(payload); err != nil {
		r.Unregister(userID, conn)
		_ = conn.Close()
		r.logger.Warn("realtime delivery failed",
			zap.Uint("user_id", userID),
			zap.String("connection_id", conn.ID()),
			zap.Error(err))
		return false
	}
	return true
}

func (r *Registry) IsConnected(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[userID]
	return ok
}

func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes and forgets every registered connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	connections := r.connections
	r.connections = make(map[uint]Connection)
	r.mu.Unlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
}
