package analytics

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

// Consume feeds every event from r into m until ctx ends or the reader
// fails. Undecodable messages are logged and skipped.
func Consume(ctx context.Context, r MessageReader, m *Metrics, log *zap.SugaredLogger) error {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read event")
		}
		var e Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			log.Warnw("failed to decode event", "offset", msg.Offset, "error", err)
			continue
		}
		m.Record(e)
		log.Debugw("event", "event", e.Event, "gameId", e.Payload["gameId"], "outcome", e.Payload["outcome"])
	}
}
