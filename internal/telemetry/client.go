package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"docrisk/internal/decision"
	"docrisk/internal/platform/config"
)

// NewClient creates a producer client for cfg and pings the cluster.
// Returns nil if no brokers are configured.
func NewClient(ctx context.Context, cfg config.TelemetryConfig) (*kgo.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
		kgo.RecordRetries(cfg.RecordRetries),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic with the broker's default replication factor.
// An existing topic is not an error.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, -1, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// FromConfig builds the sink described by cfg: a client, the topic, and a
// sampler that always keeps suspicious and fake traces. Returns a nil sink
// and client when telemetry is disabled.
func FromConfig(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger, m *Metrics) (*Sink, *kgo.Client, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil || client == nil {
		return nil, nil, err
	}
	if err := EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions); err != nil {
		client.Close()
		return nil, nil, err
	}

	sampler := NewSampler(cfg.SampleRate)
	sampler.SetRate(string(decision.LabelSuspicious), 1)
	sampler.SetRate(string(decision.LabelFake), 1)

	sink := NewSink(client, cfg.Topic,
		WithLogger(logger),
		WithMetrics(m),
		WithBreaker(NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)),
		WithSampler(sampler),
	)
	return sink, client, nil
}
