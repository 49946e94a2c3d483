package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

const (
	sinkBuffer   = 256
	writeTimeout = 5 * time.Second
)

// Sink persists session events off the controller goroutine. Events are
// dropped with a warning when the writer falls behind.
type Sink struct {
	store *Store
	log   *slog.Logger
	queue chan session.Event
	once  sync.Once
	done  chan struct{}
}

func NewSink(store *Store, log *slog.Logger) *Sink {
	s := &Sink{
		store: store,
		log:   log.With(slog.String("component", "eventstore-sink")),
		queue: make(chan session.Event, sinkBuffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) Handle(ev session.Event) {
	select {
	case s.queue <- ev:
	default:
		s.log.Warn("event store queue full, dropping event", slog.String("event", string(ev.Type)))
	}
}

// Close flushes queued events and stops the writer.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.queue) })
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.queue {
		if err := s.write(ev); err != nil {
			s.log.Warn("failed to persist session event",
				slog.String("event", string(ev.Type)),
				slog.String("session_id", ev.SessionID),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Sink) write(ev session.Event) error {
	// events outside a session (ignored commands, recopy) have no timeline
	if ev.SessionID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if ev.Type == session.EventRecordingStarted {
		if err := s.store.AppendSession(ctx, ev.SessionID); err != nil {
			return err
		}
		if err := s.store.Prune(ctx); err != nil {
			s.log.Warn("event store prune failed", slog.String("error", err.Error()))
		}
	}

	payload, err := json.Marshal(ev.Wire())
	if err != nil {
		return err
	}
	if err := s.store.AppendEvent(ctx, Event{
		SessionID: ev.SessionID,
		Type:      string(ev.Type),
		Payload:   payload,
		CreatedAt: ev.At,
	}); err != nil {
		return err
	}

	// a failed delivery still carries the text; keep it for recopy
	if ev.Text != "" && (ev.Type == session.EventDelivered || ev.Type == session.EventError) {
		return s.store.RecordTranscript(ctx, Transcript{
			SessionID: ev.SessionID,
			Text:      ev.Text,
			Delivered: ev.Type == session.EventDelivered,
			Pasted:    ev.Pasted,
			CreatedAt: ev.At,
		})
	}
	return nil
}
