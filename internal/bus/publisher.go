package bus

import (
	"log/slog"

	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

// EventPublisher forwards session events to <prefix>.session.<type>.
// Publishing is buffered by the NATS client, so Handle does not block the
// controller.
type EventPublisher struct {
	client *Client
	log    *slog.Logger
}

func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{
		client: client,
		log:    client.Logger().With(slog.String("sink", "nats")),
	}
}

func (p *EventPublisher) Handle(ev session.Event) {
	subject := protocol.SessionSubject(p.client.Prefix(), string(ev.Type))
	if err := p.client.PublishJSON(subject, ev.Wire()); err != nil {
		p.log.Warn("failed to publish session event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
