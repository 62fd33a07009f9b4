package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/pkg/config"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "signal-contracts", nil)
	at := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	c := &contracts.SignalContract{
		Schema:         "signal_contract",
		Version:        "v1",
		Symbol:         "AAPL",
		RunID:          "run_1",
		Recommendation: "BUY",
	}
	require.NoError(t, p.Publish(context.Background(), c))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "signal-contracts", msg.Topic)
	assert.Equal(t, []byte("AAPL"), msg.Key)
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "signal_contract/v1", string(msg.Headers[0].Value))

	var decoded contracts.SignalContract
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "BUY", decoded.Recommendation)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublish_Errors(t *testing.T) {
	p := newPublisher(&fakeWriter{err: errors.New("broker down")}, "t", nil)

	err := p.Publish(context.Background(), &contracts.SignalContract{Symbol: "MSFT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MSFT")
	assert.Contains(t, err.Error(), "broker down")

	assert.Error(t, p.Publish(context.Background(), nil))
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewPublisher(config.KafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)

	_, err = NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	p, err := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}
