package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type connectionState int32

const (
	stateConnecting connectionState = iota
	stateAuthenticated
	stateOpen
	stateClosed
)

func (s connectionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateOpen:
		return "open"
	default:
		return "closed"
	}
}

var errConnectionClosed = errors.New("realtime: connection closed")

// socketConnection serialises writes to a gorilla connection, which supports a single concurrent writer.
type socketConnection struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
}

func newSocketConnection(id string, conn *websocket.Conn, writeTimeout time.Duration) *socketConnection {
	return &socketConnection{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (s *socketConnection) ID() string {
	return s.id
}

func (s *socketConnection) currentState() connectionState {
	return connectionState(s.state.Load())
}

// advance moves the connection forward unless it already closed.
func (s *socketConnection) advance(next connectionState) bool {
	for {
		current := s.state.Load()
		if connectionState(current) == stateClosed {
			return false
		}
		if s.state.CompareAndSwap(current, int32(next)) {
			return true
		}
	}
}

// Send writes payload as a JSON text frame bounded by the write deadline.
func (s *socketConnection) Send(payload any) error {
	if s.currentState() == stateClosed {
		return errConnectionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(payload)
}

func (s *socketConnection) ping() error {
	if s.currentState() == stateClosed {
		return errConnectionClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// reject sends a close frame with the code and reason, then closes the socket.
func (s *socketConnection) reject(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(s.writeTimeout))
	_ = s.Close()
}

func (s *socketConnection) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(stateClosed))
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
