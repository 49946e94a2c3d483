package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/config"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "events.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.RecordTranscript(ctx, Transcript{SessionID: "s", Text: "x"}); err != nil {
		t.Fatalf("record in ephemeral mode: %v", err)
	}
	if _, err := es.LatestTranscript(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	sessionID := "session-123"
	if err := es.AppendSession(ctx, sessionID); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: sessionID, Type: "test", Payload: []byte("hello")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Payload) != "hello" {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}
}

func TestEventRequiresSession(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	if err := es.AppendEvent(context.Background(), Event{SessionID: "ghost", Type: "test"}); err == nil {
		t.Fatal("expected foreign key violation for unknown session")
	}
}

func TestLatestTranscript(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent"})
	ctx := context.Background()

	if _, err := es.LatestTranscript(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	_ = es.AppendSession(ctx, "s1")
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := es.RecordTranscript(ctx, Transcript{SessionID: "s1", Text: "first", Delivered: true, CreatedAt: base}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := es.RecordTranscript(ctx, Transcript{SessionID: "s1", Text: "second", CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("record: %v", err)
	}

	latest, err := es.LatestTranscript(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Text != "second" || latest.Delivered || !latest.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected latest transcript %+v", latest)
	}
	recent, err := es.RecentTranscripts(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[1].Text != "first" || !recent[1].Delivered {
		t.Fatalf("unexpected history %+v", recent)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})
	ctx := context.Background()

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "old-session"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "old-session", Type: "note"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.RecordTranscript(ctx, Transcript{SessionID: "old-session", Text: "old"}); err != nil {
		t.Fatalf("record transcript: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(ctx, "new-session"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	if _, err := es.LatestTranscript(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transcripts to be pruned with their session, got %v", err)
	}
}

func TestSinkPersistsTimelineAndTranscripts(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	sink := NewSink(es, newLogger())

	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	sink.Handle(session.Event{Type: session.EventIgnored, Message: "ignoring toggle", At: at})
	sink.Handle(session.Event{Type: session.EventRecordingStarted, SessionID: "s1", State: session.StateRecording, At: at})
	sink.Handle(session.Event{Type: session.EventRecordingStopped, SessionID: "s1", State: session.StateTranscribing, At: at.Add(time.Second)})
	sink.Handle(session.Event{
		Type:      session.EventError,
		SessionID: "s1",
		State:     session.StateIdle,
		Text:      "CPUの使用率",
		Err:       errors.New("paste failed"),
		At:        at.Add(2 * time.Second),
	})
	sink.Close()

	events, err := es.ListSessionEvents(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 || events[0].Type != "recording_started" || events[2].Type != "error" {
		t.Fatalf("unexpected timeline %+v", events)
	}
	tr, err := es.LatestTranscript(context.Background())
	if err != nil {
		t.Fatalf("latest transcript: %v", err)
	}
	if tr.Text != "CPUの使用率" || tr.Delivered {
		t.Fatalf("expected undelivered transcript kept, got %+v", tr)
	}
}
