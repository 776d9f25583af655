//go:build integration

package watcher_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docrisk/internal/learned"
	"docrisk/internal/learned/watcher"
	"docrisk/internal/signals"
	"docrisk/pkg/testutil/containers"
)

type WatcherSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	path  string
	store *learned.Store
}

func TestWatcherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(WatcherSuite))
}

func (s *WatcherSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *WatcherSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
	s.path = filepath.Join(s.T().TempDir(), "learned.yaml")
	s.store = learned.NewStore(learned.WithRegistry(signals.MustDefault()))
}

func (s *WatcherSuite) writeSnapshot(version int64) {
	body := fmt.Sprintf(`
version: %d
rules:
  - rule_id: total-and-font
    pattern: {signals: [amount.total_mismatch, tamper.font_inconsistency]}
    action: increase_weight
    confidence_adjustment: 0.1
    feedback_count: 10
    accuracy_estimate: 0.9
    enabled: true
`, version)
	s.Require().NoError(os.WriteFile(s.path, []byte(body), 0o600))
}

func (s *WatcherSuite) start(opts ...watcher.Option) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	w := watcher.New(s.redis.Client, "docrisk:test:learned", s.store, learned.FileSource{Path: s.path}, opts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *WatcherSuite) TestLoadsOnStartupAndNotification() {
	s.writeSnapshot(1)
	stop := s.start()
	defer stop()

	s.Eventually(func() bool { return s.store.Current().Version == 1 }, 5*time.Second, 20*time.Millisecond)

	s.writeSnapshot(2)
	s.Require().NoError(watcher.Notify(context.Background(), s.redis.Client, "docrisk:test:learned", 2))
	s.Eventually(func() bool { return s.store.Current().Version == 2 }, 5*time.Second, 20*time.Millisecond)
	s.Equal(1, s.store.Current().Len())
}

func (s *WatcherSuite) TestIntervalReload() {
	s.writeSnapshot(1)
	stop := s.start(watcher.WithInterval(50 * time.Millisecond))
	defer stop()

	s.Eventually(func() bool { return s.store.Current().Version == 1 }, 5*time.Second, 20*time.Millisecond)
	s.writeSnapshot(3)
	s.Eventually(func() bool { return s.store.Current().Version == 3 }, 5*time.Second, 20*time.Millisecond)
}

func (s *WatcherSuite) TestIgnoresMalformedAndStaleNotifications() {
	s.writeSnapshot(4)
	stop := s.start()
	defer stop()
	s.Eventually(func() bool { return s.store.Current().Version == 4 }, 5*time.Second, 20*time.Millisecond)

	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Publish(ctx, "docrisk:test:learned", "not-a-version").Err())
	s.Require().NoError(watcher.Notify(ctx, s.redis.Client, "docrisk:test:learned", 2))
	time.Sleep(100 * time.Millisecond)
	s.Equal(int64(4), s.store.Current().Version)
}
