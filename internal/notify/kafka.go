package notify

import (
	"context"
	"encoding/json"

	"parsshop-be/internal/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher buffers envelopes on an inbox channel and writes them from
// a single goroutine, so callers in the request path never wait on the
// broker.
type KafkaPublisher struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewKafkaPublisher(brokers []string, topic string, buf int) *KafkaPublisher {
	p := &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}

	go p.loop()
	return p
}

func (p *KafkaPublisher) loop() {
	defer close(p.closeCh)

	for m := range p.inbox {
		if err := p.w.WriteMessages(context.Background(), m); err != nil {
			logger.L().Error("failed to publish event",
				zap.ByteString("key", m.Key),
				zap.Error(err),
			)
		}
	}

	if err := p.w.Close(); err != nil {
		logger.L().Error("failed to close kafka writer", zap.Error(err))
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) {
	value, err := json.Marshal(env)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to marshal event", zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(env.CorrelationID),
		Value: value,
	}

	select {
	case p.inbox <- msg:
	default:
		// Full buffer means the broker is behind. Dropping here keeps the
		// request path non-blocking, the loss is logged.
		logger.FromCtx(ctx).Warn("event buffer full, dropping event",
			zap.String("event_type", env.EventType),
			zap.String("correlation_id", env.CorrelationID),
		)
	}
}

// Close flushes buffered events and waits for the writer goroutine.
func (p *KafkaPublisher) Close() error {
	close(p.inbox)
	<-p.closeCh
	return nil
}
