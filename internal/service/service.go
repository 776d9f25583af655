// Package service assembles the decision core from configuration: learned
// rule sources and refresh, audit persistence, the telemetry sink and the
// engine. The surrounding application owns the process; it calls New, runs
// Run in the background and calls Decide per document.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"docrisk/internal/audit"
	auditmemory "docrisk/internal/audit/store/memory"
	auditpostgres "docrisk/internal/audit/store/postgres"
	"docrisk/internal/decision"
	"docrisk/internal/decision/metrics"
	"docrisk/internal/learned"
	learnedstore "docrisk/internal/learned/store"
	"docrisk/internal/learned/watcher"
	"docrisk/internal/platform/config"
	"docrisk/internal/platform/logger"
	platformredis "docrisk/internal/platform/redis"
	"docrisk/internal/signals"
	"docrisk/internal/telemetry"
	"docrisk/pkg/platform/sentinel"
)

// Service is an assembled decision core.
type Service struct {
	Engine   *decision.Engine
	Learned  *learned.Store
	Audit    *audit.Publisher
	Registry *signals.Registry

	logger  *slog.Logger
	worker  *audit.Worker
	runners []func(context.Context) error
	closers []func() error
}

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// Option configures New.
type Option func(*options)

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers metrics somewhere other than the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New connects every configured backend and builds the engine. Backends are
// optional: without a DSN audit events stay in memory, without Redis the
// learned rules are polled, without brokers no traces are published.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (svc *Service, err error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.New(cfg.Logging)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	registry, err := signals.NewDefault()
	if err != nil {
		return nil, err
	}
	svc = &Service{Registry: registry, logger: o.logger}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	db, err := openDB(ctx, cfg.Learned.DSN)
	if err != nil {
		return nil, err
	}
	if db != nil {
		svc.closers = append(svc.closers, db.Close)
	}

	svc.Learned = learned.NewStore(
		learned.WithLogger(o.logger),
		learned.WithMetrics(learned.NewMetricsWith(o.registerer)),
		learned.WithRegistry(registry),
	)
	source := learnedSource(db, cfg.Learned)
	if source != nil {
		if err := svc.Learned.Refresh(ctx, source); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			o.logger.WarnContext(ctx, "initial learned rule load failed, starting without learned rules",
				"error", err,
			)
		}
		if err := svc.watchLearned(ctx, cfg, source); err != nil {
			return nil, err
		}
	}

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if db != nil {
		auditStore = auditpostgres.New(db)
	}
	svc.Audit = audit.NewPublisher(auditStore)
	svc.worker = audit.NewWorker(auditStore, cfg.Engine.AuditBuffer, o.logger)
	svc.runners = append(svc.runners, svc.worker.Run)

	engineOpts := []decision.Option{
		decision.WithLogger(o.logger),
		decision.WithMetrics(metrics.NewWith(o.registerer)),
		decision.WithOverlay(learned.NewOverlay(svc.Learned)),
		decision.WithAuditSink(svc.worker),
		decision.WithOutboxSize(cfg.Engine.OutboxSize),
		decision.WithParallelRules(cfg.Engine.ParallelRules),
	}
	sink, client, err := telemetry.FromConfig(ctx, cfg.Telemetry, o.logger, telemetry.NewMetricsWith(o.registerer))
	if err != nil {
		return nil, err
	}
	if sink != nil {
		svc.closers = append(svc.closers, func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.DeliveryTimeout)
			defer cancel()
			err := client.Flush(flushCtx)
			client.Close()
			if err != nil {
				return fmt.Errorf("flush trace sink: %w", err)
			}
			return nil
		})
		engineOpts = append(engineOpts, decision.WithTelemetrySink(sink))
	}

	svc.Engine, err = decision.NewEngine(registry, cfg.Policy, engineOpts...)
	if err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "decision core ready",
		"registry_version", registry.Version(),
		"learned_version", svc.Learned.Current().Version,
		"audit_store", fmt.Sprintf("%T", auditStore),
		"telemetry", sink != nil,
	)
	return svc, nil
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func learnedSource(db *sql.DB, cfg config.LearnedConfig) learned.Source {
	switch {
	case db != nil:
		return learnedstore.NewPostgresSource(db)
	case cfg.SnapshotFile != "":
		return learned.FileSource{Path: cfg.SnapshotFile}
	}
	return nil
}

func (s *Service) watchLearned(ctx context.Context, cfg *config.Config, source learned.Source) error {
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		s.closers = append(s.closers, rc.Close)
		w := watcher.New(rc.Client, cfg.Learned.Channel, s.Learned, source,
			watcher.WithLogger(s.logger),
			watcher.WithInterval(cfg.Learned.RefreshInterval),
		)
		s.runners = append(s.runners, w.Run)
		return nil
	}
	if cfg.Learned.RefreshInterval > 0 {
		s.runners = append(s.runners, func(ctx context.Context) error {
			return s.poll(ctx, source, cfg.Learned.RefreshInterval)
		})
	}
	return nil
}

func (s *Service) poll(ctx context.Context, source learned.Source, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Learned.Refresh(ctx, source); err != nil {
				s.logger.WarnContext(ctx, "learned rule poll failed", "error", err)
			}
		}
	}
}

// Decide runs one decision.
func (s *Service) Decide(ctx context.Context, in decision.Input) (*decision.Decision, error) {
	return s.Engine.Decide(ctx, in)
}

// Run drives the background loops (learned rule refresh, audit worker) until
// ctx is cancelled. Cancellation is a clean exit. Decisions made while Run is
// not active are persisted by Close.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, run := range s.runners {
		g.Go(func() error {
			return run(ctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close delivers queued decisions to the audit store and the trace sink, then
// releases every backend connection.
func (s *Service) Close() error {
	if s.Engine != nil {
		s.Engine.Close()
	}
	if s.worker != nil {
		s.worker.Flush()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
