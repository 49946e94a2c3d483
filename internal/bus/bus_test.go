package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pipboy3000/usual-tone-of-voice/internal/config"
	"github.com/pipboy3000/usual-tone-of-voice/internal/natsserver"
	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBus(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default().Bus
	cfg.Port = -1
	cfg.StoreDir = t.TempDir()
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := Connect(context.Background(), cfg, "tonevoice-test", newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestConnectRequiresServers(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Servers = nil
	if _, err := Connect(context.Background(), cfg, "", newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestEventPublisher(t *testing.T) {
	client := startBus(t)
	received := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe(protocol.SessionWildcard(client.Prefix()), received)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	NewEventPublisher(client).Handle(session.Event{
		Type:      session.EventDelivered,
		SessionID: "abc",
		State:     session.StateIdle,
		Text:      "CPU",
		Pasted:    true,
	})

	select {
	case msg := <-received:
		if msg.Subject != "tonevoice.session.delivered" {
			t.Fatalf("unexpected subject %s", msg.Subject)
		}
		var ev protocol.SessionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.SessionID != "abc" || ev.Text != "CPU" || !ev.Pasted || ev.State != "idle" {
			t.Fatalf("unexpected payload %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no session event received")
	}
}

type fakeControls struct {
	mu      sync.Mutex
	actions []string
	err     error
	status  session.Status
}

func (f *fakeControls) Execute(_ context.Context, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	if action == "explode" {
		return errors.New("unknown action")
	}
	return f.err
}

func (f *fakeControls) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func (f *fakeControls) Status() session.Status { return f.status }

func TestControlRoundTrip(t *testing.T) {
	client := startBus(t)
	controls := &fakeControls{status: session.Status{StateName: "recording", SessionID: "s1"}}
	server, err := ServeControl(client, controls)
	if err != nil {
		t.Fatalf("serve control: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := SendControl(ctx, client, protocol.ActionToggle)
	if err != nil {
		t.Fatalf("send control: %v", err)
	}
	if !reply.OK || reply.State != "recording" || reply.SessionID != "s1" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if actions := controls.recorded(); len(actions) != 1 || actions[0] != "toggle" {
		t.Fatalf("unexpected actions %v", actions)
	}
}

func TestControlReportsErrors(t *testing.T) {
	client := startBus(t)
	controls := &fakeControls{err: errors.New("nothing to recopy")}
	server, err := ServeControl(client, controls)
	if err != nil {
		t.Fatalf("serve control: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := SendControl(ctx, client, protocol.ActionRecopy); err == nil {
		t.Fatal("expected daemon error")
	}
	if _, err := SendControl(ctx, client, "explode"); err == nil {
		t.Fatal("expected unknown action error")
	}
}
