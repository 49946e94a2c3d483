package notify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

func TestMessage(t *testing.T) {
	cases := []struct {
		ev   session.Event
		want string
		ok   bool
	}{
		{session.Event{Type: session.EventRecordingStarted, Message: "Recording started"}, "Recording started", true},
		{session.Event{Type: session.EventDelivered, Message: "Copied to clipboard"}, "Copied to clipboard", true},
		{session.Event{Type: session.EventDiscarded, Message: "Recording discarded: 0.10s"}, "No speech detected", true},
		{session.Event{Type: session.EventError, Kind: session.KindPermissionDenied}, "Microphone access denied", true},
		{session.Event{Type: session.EventError, Kind: session.KindResourceUnavailable, Message: "Transcription failed"}, "Not ready: Transcription failed", true},
		{session.Event{Type: session.EventError, Kind: session.KindDelivery, Message: "Paste failed"}, "Paste failed", true},
		{session.Event{Type: session.EventRecordingStopped, Message: "user"}, "", false},
		{session.Event{Type: session.EventIgnored, Message: "ignoring toggle"}, "", false},
	}
	for _, tc := range cases {
		got, ok := Message(tc.ev)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Message(%s) = %q,%v want %q,%v", tc.ev.Type, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSinkDeliversAsynchronously(t *testing.T) {
	got := make(chan string, 1)
	s := &Sink{
		title:  "tonevoice",
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		notify: func(title, message string) error { got <- title + ": " + message; return nil },
		queue:  make(chan string, 1),
	}
	go s.run()
	defer s.Close()

	s.Handle(session.Event{Type: session.EventIgnored})
	s.Handle(session.Event{Type: session.EventDelivered, Message: "Pasted into the active app"})
	select {
	case msg := <-got:
		if msg != "tonevoice: Pasted into the active app" {
			t.Fatalf("unexpected notification %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}
