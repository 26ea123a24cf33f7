package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client owns the broker connection. Subscriptions are made through
// Subscriber, which takes the native client.
type Client struct {
	client paho.Client
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	// Keep the broker-side session so QoS 1 readings queued during a
	// reconnect are delivered.
	opts.SetCleanSession(false)
	// Subscriber acks each message itself after ingest, and its handler may
	// block while the ingest queue is full.
	opts.SetAutoAckDisabled(true)
	opts.SetOrderMatters(false)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info("mqtt connected", slog.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return &Client{client: client, logger: logger}, nil
}

func (c *Client) Native() paho.Client {
	return c.client
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("mqtt disconnected")
}
