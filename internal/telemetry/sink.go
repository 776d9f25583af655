// Package telemetry publishes the ordered rule trace of every decision to a
// Kafka topic. Publishing is best-effort: the sink samples real-labelled
// traces and stops trying while the broker keeps failing. Publish only
// buffers the record; delivery outcomes arrive on the producer's callback.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"docrisk/internal/decision/ports"
	dErrors "docrisk/pkg/domain-errors"
	"docrisk/pkg/platform/sentinel"
)

// Header keys set on every trace record.
const (
	HeaderRequestID = "request_id"
	HeaderLabel     = "label"
)

// Producer is the subset of *kgo.Client the sink needs. TryProduce must not
// block: a full buffer fails the record through promise with kgo.ErrMaxBuffered.
type Producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Sink implements ports.TelemetrySink on a Kafka topic.
type Sink struct {
	producer Producer
	topic    string
	breaker  *Breaker
	sampler  *Sampler
	metrics  *Metrics
	logger   *slog.Logger
}

var _ ports.TelemetrySink = (*Sink)(nil)

// Option configures the Sink.
type Option func(*Sink)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *Breaker) Option {
	return func(s *Sink) {
		s.breaker = b
	}
}

// WithSampler replaces the default keep-everything sampler.
func WithSampler(smp *Sampler) Option {
	return func(s *Sink) {
		s.sampler = smp
	}
}

// NewSink creates a sink writing to topic.
func NewSink(producer Producer, topic string, opts ...Option) *Sink {
	s := &Sink{
		producer: producer,
		topic:    topic,
		breaker:  NewBreaker(5, 0),
		sampler:  NewSampler(1),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish writes one trace keyed by decision id, so every trace of a decision
// lands on the same partition.
func (s *Sink) Publish(ctx context.Context, rec ports.TraceRecord) error {
	if !s.sampler.Keep(rec.Label) {
		s.metrics.incSampled()
		return nil
	}
	if !s.breaker.Allow() {
		s.metrics.incBreakerDropped()
		return fmt.Errorf("publish trace %s: breaker open: %w", rec.DecisionID, sentinel.ErrUnavailable)
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode decision trace")
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(rec.DecisionID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderRequestID, Value: []byte(rec.RequestID)},
			{Key: HeaderLabel, Value: []byte(rec.Label)},
		},
	}

	s.producer.TryProduce(context.WithoutCancel(ctx), record, s.settle)
	return nil
}

// settle feeds one delivery outcome into the breaker and metrics.
func (s *Sink) settle(r *kgo.Record, err error) {
	if err != nil {
		open := s.breaker.Failure()
		s.metrics.incFailures()
		s.metrics.setBreaker(open)
		s.logger.Warn("trace delivery failed",
			"topic", s.topic,
			"decision_id", string(r.Key),
			"breaker_open", open,
			"error", err,
		)
		return
	}
	s.breaker.Success()
	s.metrics.setBreaker(false)
	s.metrics.incPublished()
}

// Decode parses a trace record value written by Publish.
func Decode(value []byte) (ports.TraceRecord, error) {
	var rec ports.TraceRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return ports.TraceRecord{}, dErrors.Wrap(err, dErrors.CodeSchemaViolation, "decode decision trace")
	}
	return rec, nil
}
