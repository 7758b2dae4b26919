package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedReader struct {
	msgs []kafka.Message
	err  error
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, r.err
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func TestConsumeRecordsAndSkipsGarbage(t *testing.T) {
	broken := errors.New("broker gone")
	r := &scriptedReader{
		msgs: []kafka.Message{
			{Value: []byte(`{"event":"game_finished","timestamp":"2024-05-01T10:00:00Z","payload":{"difficulty":"easy","outcome":"draw","moves":42}}`)},
			{Value: []byte(`not json`)},
			{Value: []byte(`{"event":"move_played","timestamp":"2024-05-01T10:00:01Z","payload":{"gameId":"g"}}`)},
		},
		err: broken,
	}
	m := NewMetrics()

	err := Consume(context.Background(), r, m, zap.NewNop().Sugar())
	require.ErrorIs(t, err, broken)
	s := m.Summary()
	assert.Equal(t, 1, s.TotalGames)
	assert.Equal(t, 1, s.Outcomes["easy"]["draw"])
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &scriptedReader{err: context.Canceled}
	assert.NoError(t, Consume(ctx, r, NewMetrics(), zap.NewNop().Sugar()))
}
