package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pipboy3000/usual-tone-of-voice/internal/config"
	"github.com/pipboy3000/usual-tone-of-voice/internal/eventstore"
	"github.com/pipboy3000/usual-tone-of-voice/internal/normalize"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSession struct {
	mu      sync.Mutex
	actions []string
	err     error
	status  session.Status
}

func (f *fakeSession) Execute(_ context.Context, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return f.err
}

func (f *fakeSession) Status() session.Status { return f.status }

func (f *fakeSession) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func newTestAPI(t *testing.T, sess *fakeSession, store *eventstore.Store) *httptest.Server {
	t.Helper()
	a := &api{
		session:  sess,
		rewriter: normalize.NewRewriter(nil),
		store:    store,
		ready:    func() bool { return true },
		logger:   newLogger(),
	}
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestAPI(t, &fakeSession{}, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestSessionActions(t *testing.T) {
	sess := &fakeSession{status: session.Status{StateName: "recording", SessionID: "s1"}}
	srv := newTestAPI(t, sess, nil)

	resp, err := http.Post(srv.URL+"/v1/session/toggle", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status session.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.StateName != "recording" || status.SessionID != "s1" {
		t.Fatalf("unexpected status %+v", status)
	}
	if actions := sess.executed(); len(actions) != 1 || actions[0] != "toggle" {
		t.Fatalf("unexpected actions %v", actions)
	}

	getResp, err := http.Get(srv.URL + "/v1/session/toggle")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET action, got %d", getResp.StatusCode)
	}
}

func TestActionErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrPermissionDenied, http.StatusForbidden},
		{session.ErrResourceUnavailable, http.StatusServiceUnavailable},
		{session.ErrNothingToRecopy, http.StatusNotFound},
		{session.ErrUnknownAction, http.StatusNotFound},
	}
	for _, tc := range cases {
		srv := newTestAPI(t, &fakeSession{err: tc.err}, nil)
		resp, err := http.Post(srv.URL+"/v1/session/start", "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, resp.StatusCode)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	srv := newTestAPI(t, &fakeSession{}, nil)
	resp, err := http.Post(srv.URL+"/v1/normalize", "application/json", strings.NewReader(`{"text":"ジェイソンとエーピーアイ"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out normalizeRequest
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Text != "JSONとAPI" {
		t.Fatalf("unexpected normalized text %q", out.Text)
	}

	bad, err := http.Post(srv.URL+"/v1/normalize", "application/json", strings.NewReader(`not json`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}

func TestLastTranscriptFallsBackToController(t *testing.T) {
	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	empty := newTestAPI(t, &fakeSession{}, store)
	resp, err := http.Get(empty.URL + "/v1/transcripts/last")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	srv := newTestAPI(t, &fakeSession{status: session.Status{LastTranscript: "CPU"}}, store)
	resp, err = http.Get(srv.URL + "/v1/transcripts/last")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Text != "CPU" {
		t.Fatalf("unexpected transcript %+v", tr)
	}
}

func TestTranscriptsFromStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "session", Path: filepath.Join(t.TempDir(), "events.db")}
	store, err := eventstore.Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_ = store.AppendSession(ctx, "s1")
	_ = store.AppendEvent(ctx, eventstore.Event{SessionID: "s1", Type: "delivered", Payload: []byte(`{"type":"delivered"}`)})
	if err := store.RecordTranscript(ctx, eventstore.Transcript{SessionID: "s1", Text: "保存済み", Delivered: true}); err != nil {
		t.Fatalf("record: %v", err)
	}

	srv := newTestAPI(t, &fakeSession{}, store)
	resp, err := http.Get(srv.URL + "/v1/transcripts/last")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var tr transcriptResponse
	_ = json.NewDecoder(resp.Body).Decode(&tr)
	resp.Body.Close()
	if tr.Text != "保存済み" || tr.SessionID != "s1" || !tr.Delivered {
		t.Fatalf("unexpected transcript %+v", tr)
	}

	resp, err = http.Get(srv.URL + "/v1/sessions/s1/events")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	var events []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&events)
	resp.Body.Close()
	if len(events) != 1 || events[0]["type"] != "delivered" {
		t.Fatalf("unexpected events %+v", events)
	}
}
