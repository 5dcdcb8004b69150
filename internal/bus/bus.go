// Package bus is the pub/sub transport seam between services. The production
// implementation rides on NATS; an in-memory implementation with the same
// subject semantics backs local mode and tests.
package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Msg is a single delivered message.
type Msg struct {
	Subject string
	Data    []byte
}

// Handler consumes delivered messages. Handlers may be invoked concurrently
// for different messages and must do their own locking.
type Handler func(msg Msg)

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// Conn is the minimal broker surface the orchestration core needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, h Handler) (Subscription, error)
	Close() error
}

// Connect dials a NATS server and wraps it as a Conn.
func Connect(url string) (Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	return &natsConn{nc: nc}, nil
}

type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *natsConn) Subscribe(subject string, h Handler) (Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		h(Msg{Subject: m.Subject, Data: m.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (c *natsConn) Close() error {
	c.nc.Close()
	return nil
}
