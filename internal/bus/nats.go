package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps one NATS connection used both to consume readings and to
// publish assessment events.
type Client struct {
	Conn   *nats.Conn
	Logger *slog.Logger

	closed chan struct{}
}

// closeTimeout bounds how long Close waits for in-flight handlers to finish.
const closeTimeout = 30 * time.Second

func NewClient(url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	closed := make(chan struct{})
	conn, err := nats.Connect(url,
		nats.Name("bridgeguard-ingest"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Client{Conn: conn, Logger: logger, closed: closed}, nil
}

// Close drains the connection and returns once queued messages have been
// handled and the connection is closed, so stores used by the handlers can
// be closed after it.
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if c.closed == nil {
		c.Conn.Close()
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.logger().Warn("nats drain failed", slog.String("error", err.Error()))
		c.Conn.Close()
		return
	}
	select {
	case <-c.closed:
	case <-time.After(closeTimeout):
		c.logger().Warn("nats drain timed out")
		c.Conn.Close()
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.Conn.Publish(subject, data)
}
