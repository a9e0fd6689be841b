package screenclient

import "github.com/kapu/astrofm-go/internal/orchestrator"

// Session is the server's reply to opening a screen.
type Session struct {
	ID       string                `json:"session_id"`
	Snapshot orchestrator.Snapshot `json:"snapshot"`
}

type errorBody struct {
	Error string `json:"error"`
}

type StreamState string

const (
	StreamConnecting   StreamState = "CONNECTING"
	StreamConnected    StreamState = "CONNECTED"
	StreamDisconnected StreamState = "DISCONNECTED"
	StreamReconnecting StreamState = "RECONNECTING"
	StreamClosed       StreamState = "CLOSED"
	StreamFailed       StreamState = "FAILED"
)

func (s StreamState) String() string {
	return string(s)
}
