package session

import (
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/capture"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

// Settings is the per-session snapshot. Changes made while a session is in
// flight apply to the next one.
type Settings struct {
	Language       string
	AutoPaste      bool
	RewriteEnabled bool
	Sensitivity    silence.Sensitivity
	Model          string
	Instructions   string
	InitialPrompt  string
}

// SettingsSource yields the settings current at call time.
type SettingsSource interface {
	Settings() Settings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

func (s StaticSettings) Settings() Settings { return Settings(s) }

// Session is the single capture-to-delivery unit in flight.
type Session struct {
	ID        string
	StartedAt time.Time
	Settings  Settings
	Recording capture.Recording

	monitor *silence.Monitor
	meter   capture.PowerMeter
}

// Status is a point-in-time view for status endpoints.
type Status struct {
	State          State     `json:"-"`
	StateName      string    `json:"state"`
	SessionID      string    `json:"session_id,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	LastTranscript string    `json:"last_transcript,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}
