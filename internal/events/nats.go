package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
)

const defaultSubjectPrefix = "trips"

var errNilConn = errors.New("nats connection not initialized")

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes JSON events on "<prefix>.<type>".
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSPublisher dials NATS at url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("ai-trip-planner"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			telemetry.Warn("events.nats_disconnected", map[string]any{"err": err})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telemetry.Info("events.nats_reconnected", map[string]any{"url": nc.ConnectedUrl()})
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return newNATSPublisher(nc, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.conn == nil {
		return errNilConn
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.Subject(ev.Type), data)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

var _ Publisher = (*NATSPublisher)(nil)
