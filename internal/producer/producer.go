// Package producer owns the single outbound Kafka writer. Handlers enqueue
// event descriptors; one goroutine encodes and sends them in arrival order.
package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sourceops/open-bank-mark/internal/avro"
)

// Data describes one outbound event: topic, UTF-8 key, and the ordered
// field values to encode.
type Data struct {
	Topic  string
	Key    string
	Values avro.Record
}

// Queue is the bounded channel between the consumer workers and the
// producer goroutine. Send blocks when the queue is full, which is the
// backpressure that keeps memory capped.
type Queue struct {
	ch chan Data
}

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Data, size)}
}

// Send enqueues d, or returns the context error if ctx ends first.
func (q *Queue) Send(ctx context.Context, d Data) error {
	select {
	case q.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals the producer loop that no more data will arrive. Callers
// must not Send after Close.
func (q *Queue) Close() {
	close(q.ch)
}

// Producer encodes queued events against the registry and writes them to
// the bus. The encoder's schema cache is owned by the Run goroutine alone.
type Producer struct {
	writer  *kafka.Writer
	encoder *avro.Encoder
	logger  *zap.Logger
}

// NewProducer creates the single outbound writer. Writes are synchronous,
// require acks from all replicas, and time out after one second.
func NewProducer(brokers []string, registry avro.Registry, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		Async:        false,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 1 * time.Second,
	}

	return &Producer{
		writer:  writer,
		encoder: avro.NewEncoder(registry),
		logger:  logger,
	}
}

// Run consumes the queue until it is closed, then returns. It keeps going
// after the workers' context ends so that already-enqueued events drain
// before shutdown. Encoding or send errors are terminal.
func (p *Producer) Run(q *Queue) error {
	for d := range q.ch {
		payload, err := p.encoder.Encode(d.Topic, d.Values)
		if err != nil {
			return err
		}

		msg := kafka.Message{
			Topic: d.Topic,
			Key:   []byte(d.Key),
			Value: payload,
		}
		if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
			return err
		}

		eventsProducedTotal.WithLabelValues(d.Topic).Inc()
		p.logger.Debug("Event produced",
			zap.String("topic", d.Topic),
			zap.String("key", d.Key),
		)
	}
	return nil
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
