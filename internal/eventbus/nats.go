package eventbus

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes MessageCreated events on a NATS subject
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to url and publishes on subject
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("lanchat"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Publish(_ context.Context, evt MessageCreated) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
