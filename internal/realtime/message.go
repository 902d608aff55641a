package realtime

const (
	MessageTypeConnection = "connection"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"

	connectedMessage = "Connected successfully"
)

// ConnectionMessage greets a freshly authenticated connection.
type ConnectionMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	UserID  uint   `json:"userId"`
}

// ControlMessage is the shape of client heartbeat frames and their replies.
type ControlMessage struct {
	Type string `json:"type"`
}

func greeting(userID uint) ConnectionMessage {
	return ConnectionMessage{Type: MessageTypeConnection, Message: connectedMessage, UserID: userID}
}
