package protocol

import "time"

// SessionEvent is the wire form of a controller transition, published on
// SessionSubject and stored in the event timeline.
type SessionEvent struct {
	Type          string    `json:"type"`
	SessionID     string    `json:"session_id,omitempty"`
	State         string    `json:"state"`
	Text          string    `json:"text,omitempty"`
	Pasted        bool      `json:"pasted,omitempty"`
	Kind          string    `json:"kind,omitempty"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
	TotalSeconds  float64   `json:"total_seconds,omitempty"`
	ActiveSeconds float64   `json:"active_seconds,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Control actions accepted on ControlSubject.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionToggle = "toggle"
	ActionRecopy = "recopy"
	ActionStatus = "status"
)

// ControlCommand asks the daemon to drive its session controller.
type ControlCommand struct {
	Action string `json:"action"`
}

// ControlReply answers a ControlCommand with the state after it ran.
type ControlReply struct {
	OK             bool   `json:"ok"`
	State          string `json:"state"`
	SessionID      string `json:"session_id,omitempty"`
	LastTranscript string `json:"last_transcript,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Presence is broadcast periodically so clients can find a running daemon.
type Presence struct {
	NodeID       string    `json:"node_id"`
	Version      string    `json:"version,omitempty"`
	State        string    `json:"state"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func SessionSubject(prefix, eventType string) string {
	return prefix + ".session." + eventType
}

// SessionWildcard matches every session event subject under prefix.
func SessionWildcard(prefix string) string {
	return prefix + ".session.>"
}

func ControlSubject(prefix string) string {
	return prefix + ".control"
}

func PresenceSubject(prefix string) string {
	return prefix + ".presence"
}
