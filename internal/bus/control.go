package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

const controlTimeout = 10 * time.Second

// Controls is the part of session.Controller reachable over the bus.
type Controls interface {
	Execute(ctx context.Context, action string) error
	Status() session.Status
}

// ControlServer answers protocol.ControlCommand requests on
// <prefix>.control.
type ControlServer struct {
	client   *Client
	controls Controls
	sub      *nats.Subscription
	log      *slog.Logger
}

func ServeControl(client *Client, controls Controls) (*ControlServer, error) {
	s := &ControlServer{
		client:   client,
		controls: controls,
		log:      client.Logger().With(slog.String("handler", "control")),
	}
	sub, err := client.Conn().Subscribe(protocol.ControlSubject(client.Prefix()), s.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe control: %w", err)
	}
	s.sub = sub
	return s, nil
}

func (s *ControlServer) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *ControlServer) handle(msg *nats.Msg) {
	var cmd protocol.ControlCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.respond(msg, protocol.ControlReply{Error: "invalid control command: " + err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	err := s.controls.Execute(ctx, cmd.Action)
	reply := statusReply(s.controls.Status())
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.OK = true
	}
	s.log.Info("control command handled", slog.String("action", cmd.Action), slog.Bool("ok", reply.OK))
	s.respond(msg, reply)
}

func (s *ControlServer) respond(msg *nats.Msg, reply protocol.ControlReply) {
	if msg.Reply == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		s.log.Warn("failed to encode control reply", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(payload); err != nil {
		s.log.Warn("failed to send control reply", slog.String("error", err.Error()))
	}
}

func statusReply(status session.Status) protocol.ControlReply {
	return protocol.ControlReply{
		State:          status.StateName,
		SessionID:      status.SessionID,
		LastTranscript: status.LastTranscript,
	}
}

// SendControl issues a control action and waits for the daemon's reply.
func SendControl(ctx context.Context, client *Client, action string) (protocol.ControlReply, error) {
	var reply protocol.ControlReply
	err := client.RequestJSON(ctx, protocol.ControlSubject(client.Prefix()), protocol.ControlCommand{Action: action}, &reply)
	if err != nil {
		return reply, err
	}
	if !reply.OK && reply.Error != "" {
		return reply, fmt.Errorf("daemon: %s", reply.Error)
	}
	return reply, nil
}
