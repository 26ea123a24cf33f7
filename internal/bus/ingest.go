package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"bridgeguard-backend/internal/ingest"
)

type Ingester interface {
	Ingest(ctx context.Context, reading ingest.Reading) (ingest.Result, error)
}

// ServeIngest subscribes ing to subject in the given queue group so that
// several service instances share the reading stream. Messages are handled
// one at a time per subscription. A message with a reply subject receives
// the Result or the error envelope.
func (c *Client) ServeIngest(subject, queue string, ing Ingester) (*nats.Subscription, error) {
	return c.Conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		reply := handleReading(context.Background(), ing, msg.Data, c.Logger)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			c.Logger.Warn("nats reply failed", slog.String("subject", msg.Reply), slog.String("error", err.Error()))
		}
	})
}

func handleReading(ctx context.Context, ing Ingester, data []byte, logger *slog.Logger) []byte {
	if logger == nil {
		logger = slog.Default()
	}
	var payload any
	reading, err := ingest.DecodeReading(data)
	if err == nil {
		var res ingest.Result
		res, err = ing.Ingest(ingest.WithSource(ctx, "nats"), reading)
		payload = res
	}
	if err != nil {
		logger.Warn("nats reading rejected",
			slog.String("bridge_id", reading.BridgeID),
			slog.String("code", ingest.Code(err)),
			slog.String("error", err.Error()))
		payload = ingest.Failure(err)
	}
	out, _ := json.Marshal(payload)
	return out
}
