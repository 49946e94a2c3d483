package session

import (
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
)

type EventType string

const (
	EventRecordingStarted EventType = "recording_started"
	EventRecordingStopped EventType = "recording_stopped"
	EventSilencePrompt    EventType = "silence_prompt"
	EventDiscarded        EventType = "discarded"
	EventDelivered        EventType = "delivered"
	EventWarning          EventType = "warning"
	EventError            EventType = "error"
	EventIgnored          EventType = "ignored"
)

// Event is emitted once per transition or notable side effect.
type Event struct {
	Type      EventType
	SessionID string
	State     State
	Text      string
	Pasted    bool
	Err       error
	Kind      Kind
	Message   string
	Analysis  *silence.Analysis
	At        time.Time
}

// Wire converts the event to its published form.
func (ev Event) Wire() protocol.SessionEvent {
	out := protocol.SessionEvent{
		Type:      string(ev.Type),
		SessionID: ev.SessionID,
		State:     ev.State.String(),
		Text:      ev.Text,
		Pasted:    ev.Pasted,
		Kind:      string(ev.Kind),
		Message:   ev.Message,
		Timestamp: ev.At,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	if ev.Analysis != nil {
		out.TotalSeconds = ev.Analysis.TotalDuration
		out.ActiveSeconds = ev.Analysis.ActiveDuration
	}
	return out
}

// EventSink consumes events on the controller goroutine. Implementations
// must not block for long.
type EventSink interface {
	Handle(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Handle(ev Event) { f(ev) }

// MultiSink fans out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Handle(ev Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Handle(ev)
		}
	}
}
