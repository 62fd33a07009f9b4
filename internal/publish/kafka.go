package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/pkg/config"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher fans persistable contracts out to a Kafka topic, keyed by symbol
// so that one instrument's contracts stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *logger.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher for cfg.Brokers
func NewPublisher(cfg config.KafkaConfig, log *logger.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}

	return newPublisher(w, cfg.Topic, log), nil
}

func newPublisher(w messageWriter, topic string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: log.WithComponent("publish"),
		now:    time.Now,
	}
}

// Publish implements contracts.ContractPublisher
func (p *Publisher) Publish(ctx context.Context, contract *contracts.SignalContract) error {
	if contract == nil {
		return fmt.Errorf("publish: nil contract")
	}

	msg, err := p.message(contract)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", contract.Symbol, err)
	}

	p.logger.WithFields(map[string]interface{}{
		"symbol": contract.Symbol,
		"run_id": contract.RunID,
		"topic":  p.topic,
	}).Debug("Contract published")
	return nil
}

func (p *Publisher) message(contract *contracts.SignalContract) (kafka.Message, error) {
	value, err := json.Marshal(contract)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode contract: %w", err)
	}
	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(contract.Symbol),
		Value: value,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "schema", Value: []byte(contract.Schema + "/" + contract.Version)},
			{Key: "run_id", Value: []byte(contract.RunID)},
		},
	}, nil
}

// Close flushes pending messages
func (p *Publisher) Close() error {
	return p.writer.Close()
}
