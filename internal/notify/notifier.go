// Package notify turns session events into desktop notifications.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

// Sink posts a notification for the events a user cares about. Delivery
// happens on its own goroutine so a slow notification daemon never stalls
// the session loop.
type Sink struct {
	title  string
	log    *slog.Logger
	notify func(title, message string) error
	queue  chan string
}

func NewSink(title string, log *slog.Logger) *Sink {
	s := &Sink{
		title: title,
		log:   log.With(slog.String("component", "notify")),
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		queue: make(chan string, 16),
	}
	go s.run()
	return s
}

func (s *Sink) Handle(ev session.Event) {
	message, ok := Message(ev)
	if !ok {
		return
	}
	select {
	case s.queue <- message:
	default:
		s.log.Debug("notification dropped", slog.String("event", string(ev.Type)))
	}
}

// Close stops the delivery goroutine.
func (s *Sink) Close() {
	close(s.queue)
}

func (s *Sink) run() {
	for message := range s.queue {
		if err := s.notify(s.title, message); err != nil {
			s.log.Debug("notification failed", slog.String("error", err.Error()))
		}
	}
}

// Message returns the notification text for ev, or false when the event is
// not worth interrupting the user for.
func Message(ev session.Event) (string, bool) {
	switch ev.Type {
	case session.EventRecordingStarted,
		session.EventDelivered,
		session.EventSilencePrompt,
		session.EventWarning:
		return ev.Message, ev.Message != ""
	case session.EventDiscarded:
		return "No speech detected", true
	case session.EventError:
		switch ev.Kind {
		case session.KindPermissionDenied:
			return "Microphone access denied", true
		case session.KindResourceUnavailable:
			return "Not ready: " + ev.Message, true
		}
		return ev.Message, ev.Message != ""
	default:
		return "", false
	}
}
