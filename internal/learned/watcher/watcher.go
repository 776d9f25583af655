// Package watcher keeps a learned.Store current by reloading its source when
// the feedback pipeline announces a new snapshot on Redis pub/sub, with a
// periodic reload as fallback for missed notifications.
package watcher

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docrisk/internal/learned"
)

// Watcher reloads learned-rule snapshots on notification.
type Watcher struct {
	client   *redis.Client
	channel  string
	store    *learned.Store
	source   learned.Source
	interval time.Duration
	logger   *slog.Logger
}

// Option configures the Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithInterval sets the fallback reload period; zero disables it.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

// New creates a watcher for channel.
func New(client *redis.Client, channel string, store *learned.Store, source learned.Source, opts ...Option) *Watcher {
	w := &Watcher{
		client:  client,
		channel: channel,
		store:   store,
		source:  source,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify announces that snapshot version is available.
func Notify(ctx context.Context, client *redis.Client, channel string, version int64) error {
	return client.Publish(ctx, channel, strconv.FormatInt(version, 10)).Err()
}

// Run loads the current snapshot, then reloads on every notification newer
// than the active version until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	sub := w.client.Subscribe(ctx, w.channel)
	defer sub.Close()
	// wait for the subscription so no notification is lost after the initial load
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	w.reload(ctx, "startup")

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			version, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				w.logger.WarnContext(ctx, "ignoring malformed snapshot notification",
					"channel", msg.Channel,
					"payload", msg.Payload,
				)
				continue
			}
			if version <= w.store.Current().Version {
				continue
			}
			w.reload(ctx, "notification")
		case <-tick:
			w.reload(ctx, "interval")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, trigger string) {
	before := w.store.Current().Version
	if err := w.store.Refresh(ctx, w.source); err != nil {
		w.logger.WarnContext(ctx, "learned rule reload failed",
			"trigger", trigger,
			"version", before,
			"error", err,
		)
		return
	}
	if after := w.store.Current().Version; after != before {
		w.logger.InfoContext(ctx, "learned rules reloaded",
			"trigger", trigger,
			"from_version", before,
			"to_version", after,
		)
	}
}
