package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"docrisk/internal/decision/ports"
	"docrisk/internal/rules"
	"docrisk/internal/telemetry"
	"docrisk/pkg/platform/sentinel"
)

// fakeProducer settles every record immediately unless hold is set, in which
// case promises are kept for the test to settle.
type fakeProducer struct {
	mu       sync.Mutex
	records  []*kgo.Record
	err      error
	hold     bool
	promises []func(*kgo.Record, error)
	pending  []*kgo.Record
}

func (p *fakeProducer) TryProduce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	if p.hold {
		p.pending = append(p.pending, r)
		p.promises = append(p.promises, promise)
		p.mu.Unlock()
		return
	}
	if p.err == nil {
		p.records = append(p.records, r)
	}
	err := p.err
	p.mu.Unlock()
	promise(r, err)
}

func (p *fakeProducer) settle(err error) {
	p.mu.Lock()
	promises, pending := p.promises, p.pending
	p.promises, p.pending = nil, nil
	p.mu.Unlock()
	for i, promise := range promises {
		promise(pending[i], err)
	}
}

type SinkSuite struct {
	suite.Suite
	producer *fakeProducer
	metrics  *telemetry.Metrics
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupTest() {
	s.producer = &fakeProducer{}
	s.metrics = telemetry.NewMetricsWith(prometheus.NewRegistry())
}

func trace(id, label string) ports.TraceRecord {
	return ports.TraceRecord{
		DecisionID:      id,
		RequestID:       "req-" + id,
		Label:           label,
		Score:           0.5,
		SnapshotVersion: 4,
		EvaluatedAt:     time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Entries: []rules.TraceEntry{
			{RuleID: "amount.total_consistency", Severity: rules.SeverityCritical, AppliedWeight: 0.5},
			{RuleID: "fields.missing", Severity: rules.SeverityInfo, Suppressed: true},
		},
	}
}

func (s *SinkSuite) TestPublishesKeyedRecord() {
	sink := telemetry.NewSink(s.producer, "traces", telemetry.WithMetrics(s.metrics))

	s.Require().NoError(sink.Publish(context.Background(), trace("d-1", "suspicious")))

	s.Require().Len(s.producer.records, 1)
	rec := s.producer.records[0]
	s.Equal("traces", rec.Topic)
	s.Equal([]byte("d-1"), rec.Key)
	s.Contains(rec.Headers, kgo.RecordHeader{Key: telemetry.HeaderRequestID, Value: []byte("req-d-1")})
	s.Contains(rec.Headers, kgo.RecordHeader{Key: telemetry.HeaderLabel, Value: []byte("suspicious")})

	decoded, err := telemetry.Decode(rec.Value)
	s.Require().NoError(err)
	s.Equal(trace("d-1", "suspicious"), decoded)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Published))
}

func (s *SinkSuite) TestSampledOut() {
	sink := telemetry.NewSink(s.producer, "traces",
		telemetry.WithMetrics(s.metrics),
		telemetry.WithSampler(telemetry.NewSampler(0)),
	)
	s.Require().NoError(sink.Publish(context.Background(), trace("d-1", "real")))
	s.Empty(s.producer.records)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Sampled))
}

func (s *SinkSuite) TestBreakerOpensOnRepeatedFailures() {
	s.producer.err = errors.New("leader not available")
	sink := telemetry.NewSink(s.producer, "traces",
		telemetry.WithMetrics(s.metrics),
		telemetry.WithBreaker(telemetry.NewBreaker(2, time.Hour)),
	)
	ctx := context.Background()

	s.NoError(sink.Publish(ctx, trace("d-1", "fake")), "delivery failures surface on the callback")
	s.NoError(sink.Publish(ctx, trace("d-2", "fake")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BreakerState))

	err := sink.Publish(ctx, trace("d-3", "fake"))
	s.ErrorIs(err, sentinel.ErrUnavailable)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Failures))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BreakerDropped))
}

func (s *SinkSuite) TestPublishNeverWaitsForDelivery() {
	s.producer.hold = true
	sink := telemetry.NewSink(s.producer, "traces",
		telemetry.WithMetrics(s.metrics),
		telemetry.WithBreaker(telemetry.NewBreaker(1, time.Hour)),
	)
	ctx, cancel := context.WithCancel(context.Background())

	s.Require().NoError(sink.Publish(ctx, trace("d-1", "fake")))
	cancel()
	s.Zero(testutil.ToFloat64(s.metrics.Published), "nothing settled yet")
	s.Zero(testutil.ToFloat64(s.metrics.Failures))

	s.producer.settle(kgo.ErrRecordTimeout)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Failures))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BreakerState))
	s.ErrorIs(sink.Publish(context.Background(), trace("d-2", "fake")), sentinel.ErrUnavailable)
}

func (s *SinkSuite) TestFullProducerBufferCountsAsFailure() {
	s.producer.err = kgo.ErrMaxBuffered
	sink := telemetry.NewSink(s.producer, "traces", telemetry.WithMetrics(s.metrics))

	s.NoError(sink.Publish(context.Background(), trace("d-1", "suspicious")))
	s.Empty(s.producer.records)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Failures))
	s.Zero(testutil.ToFloat64(s.metrics.BreakerState), "one failure stays under the threshold")
}

func (s *SinkSuite) TestDecodeRejectsGarbage() {
	_, err := telemetry.Decode([]byte("{not json"))
	s.Error(err)
}
