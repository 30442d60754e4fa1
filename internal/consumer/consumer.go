// Package consumer runs one worker per subscribed command topic.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sourceops/open-bank-mark/internal/avro"
	"github.com/sourceops/open-bank-mark/internal/handler"
	"github.com/sourceops/open-bank-mark/internal/tracing"
)

// Worker fetches records from a single topic, decodes them, dispatches to
// its processor, and commits the offset once the processor returns.
type Worker struct {
	topic   string
	reader  *kafka.Reader
	decoder *avro.Decoder
	proc    handler.CommandProcessor
	logger  *zap.Logger
}

// NewWorker creates a worker for topic under the shared consumer group.
// Each worker owns its decoder and its schema cache.
func NewWorker(
	brokers []string,
	topic string,
	group string,
	registry avro.Registry,
	proc handler.CommandProcessor,
	logger *zap.Logger,
) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     group,
		StartOffset: kafka.FirstOffset,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
	})

	return &Worker{
		topic:   topic,
		reader:  reader,
		decoder: avro.NewDecoder(registry),
		proc:    proc,
		logger:  logger,
	}
}

// Run loops until ctx ends or a terminal error occurs. A record that fails
// to decode is logged, counted, and committed so it cannot stall the
// partition; a processor or commit error stops the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Consumer started",
		zap.String("topic", w.topic),
		zap.String("group", w.reader.Config().GroupID),
	)

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.logger.Info("Consumer stopping", zap.String("topic", w.topic))
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", w.topic, err)
		}

		rec, err := w.decoder.Decode(msg.Value)
		if err != nil {
			w.logger.Warn("Skipping record that failed to decode",
				zap.String("topic", w.topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			commandsConsumedTotal.WithLabelValues(w.topic, "skipped").Inc()
			if err := w.commit(ctx, msg); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		pctx, span := tracing.Tracer().Start(ctx, "process_command",
			trace.WithAttributes(attribute.String("topic", w.topic), attribute.Int64("offset", msg.Offset)))
		err = w.proc.Process(pctx, rec)
		span.End()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.logger.Info("Consumer stopping", zap.String("topic", w.topic))
				return nil
			}
			commandsConsumedTotal.WithLabelValues(w.topic, "error").Inc()
			return fmt.Errorf("process %s offset %d: %w", w.topic, msg.Offset, err)
		}
		processingDuration.WithLabelValues(w.topic).Observe(time.Since(start).Seconds())
		commandsConsumedTotal.WithLabelValues(w.topic, "ok").Inc()

		if err := w.commit(ctx, msg); err != nil {
			return err
		}
	}
}

// commit stores the record's offset. A cancellation mid-commit is part of
// shutdown, not a bus failure.
func (w *Worker) commit(ctx context.Context, msg kafka.Message) error {
	if err := w.reader.CommitMessages(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("commit %s offset %d: %w", w.topic, msg.Offset, err)
	}
	return nil
}

// Close closes the underlying reader.
func (w *Worker) Close() error {
	return w.reader.Close()
}
