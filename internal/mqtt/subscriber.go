package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"bridgeguard-backend/internal/ingest"
)

const defaultQueueSize = 64

type Ingester interface {
	Ingest(ctx context.Context, reading ingest.Reading) (ingest.Result, error)
}

type SubscriberConfig struct {
	Topic     string // e.g. "bridges/+/readings"
	QoS       byte
	QueueSize int
	Workers   int
}

type delivery struct {
	reading ingest.Reading
	msg     paho.Message
}

// Subscriber decodes readings off the broker into a buffered queue which
// Run drains into the pipeline. The client runs with auto-ack disabled and
// unordered delivery, so handleMessage may block on a full queue, and a
// message is acked only once the pipeline has taken it. Anything still
// unacked when the subscriber stops is redelivered by the broker on the next
// session.
type Subscriber struct {
	client  paho.Client
	cfg     SubscriberConfig
	queue   chan delivery
	stopped chan struct{}
	logger  *slog.Logger
}

func NewSubscriber(client paho.Client, cfg SubscriberConfig, logger *slog.Logger) *Subscriber {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:  client,
		cfg:     cfg,
		queue:   make(chan delivery, cfg.QueueSize),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

func (s *Subscriber) Subscribe() error {
	token := s.client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Topic, token.Error())
	}
	s.logger.Info("mqtt subscribed", slog.String("topic", s.cfg.Topic))
	return nil
}

// Run feeds queued readings to ing until ctx is done. It then ingests what is
// already queued and returns once every worker is idle. Run must be called
// at most once.
func (s *Subscriber) Run(ctx context.Context, ing Ingester) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case d := <-s.queue:
					s.ingest(ctx, ing, d)
				case <-ctx.Done():
					s.drain(ctx, ing)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(s.stopped)
}

func (s *Subscriber) drain(ctx context.Context, ing Ingester) {
	for {
		select {
		case d := <-s.queue:
			s.ingest(ctx, ing, d)
		default:
			return
		}
	}
}

func (s *Subscriber) ingest(ctx context.Context, ing Ingester, d delivery) {
	res, err := ing.Ingest(ingest.WithSource(ctx, "mqtt"), d.reading)
	if err != nil {
		s.logger.Warn("mqtt reading rejected",
			slog.String("bridge_id", d.reading.BridgeID),
			slog.String("code", ingest.Code(err)),
			slog.String("error", err.Error()))
		// A storage failure may mean the raw log never landed; leave the
		// message unacked so the broker hands it out again.
		if errors.Is(err, ingest.ErrStorage) {
			return
		}
		d.msg.Ack()
		return
	}
	d.msg.Ack()
	s.logger.Debug("mqtt reading ingested",
		slog.String("bridge_id", res.BridgeID),
		slog.String("sensor_log_id", res.LogID))
}

func (s *Subscriber) handleMessage(_ paho.Client, msg paho.Message) {
	reading, err := ingest.DecodeReading(msg.Payload())
	if err != nil {
		s.logger.Warn("mqtt payload rejected", slog.String("topic", msg.Topic()), slog.String("error", err.Error()))
		msg.Ack()
		return
	}
	if strings.TrimSpace(reading.BridgeID) == "" {
		reading.BridgeID = topicSegment(s.cfg.Topic, msg.Topic())
	}

	select {
	case s.queue <- delivery{reading: reading, msg: msg}:
	case <-s.stopped:
		s.logger.Info("mqtt subscriber stopped, reading left for redelivery", slog.String("bridge_id", reading.BridgeID))
	}
}

// topicSegment returns the level of topic matched by the first single-level
// wildcard in pattern, or "" when pattern has none or the levels disagree.
func topicSegment(pattern, topic string) string {
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return ""
	}
	for i, level := range want {
		if level == "+" {
			return got[i]
		}
		if level != got[i] {
			return ""
		}
	}
	return ""
}
