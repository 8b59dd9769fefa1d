// Package streaming defines the wire protocol spoken by the websocket
// storage backend.
package streaming

import (
	"encoding/json"

	"github.com/wytcherly/foreman/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession     = "start_session"
	TypeEndSession       = "end_session"
	TypePowerChange      = "power_change"
	TypeSubsystemChange  = "subsystem_change"
	TypeCapabilityChange = "capability_change"
	TypeAssignment       = "assignment"
	TypeStateTransition  = "state_transition"
	TypeStatusReport     = "status_report"
	TypeDecision         = "decision"
	TypeAck              = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session being recorded.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}
