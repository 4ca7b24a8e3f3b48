/*
Package syncer schedules queue drains on the on-farm agent.

PURPOSE:
  The replayer only runs when something triggers it. This package provides
  the two triggers:
  - a cron schedule (belt and suspenders against missed transitions)
  - connectivity transitions from offline to online

  Drains never overlap; the replayer serializes them internally.

SEE ALSO:
  - ledger/replay.go: the drain logic itself
  - prober.go: the connectivity watcher feeding transitions
*/
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/coopstack/farm-ledger/config"
	"github.com/coopstack/farm-ledger/ledger"
)

// Syncer manages scheduled and connectivity-triggered queue drains.
type Syncer struct {
	cron     *cron.Cron
	replayer *ledger.Replayer
	conn     ledger.Connectivity
	logger   *zap.Logger

	schedule string
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a syncer. conn may be nil when only cron drains are wanted.
func New(cfg config.Sync, replayer *ledger.Replayer, conn ledger.Connectivity, logger *zap.Logger) (*Syncer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Syncer{
		cron:     cron.New(cron.WithLocation(loc)),
		replayer: replayer,
		conn:     conn,
		logger:   logger,
		schedule: cfg.CronSchedule,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins scheduling drains.
func (s *Syncer) Start() error {
	s.logger.Info("starting syncer", zap.String("schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, s.drain); err != nil {
		return err
	}
	s.cron.Start()

	if s.conn != nil {
		s.wg.Add(1)
		go s.watchConnectivity()
	}
	return nil
}

// Stop stops the scheduler and waits for the watcher to exit.
func (s *Syncer) Stop() {
	s.logger.Info("stopping syncer")
	s.cron.Stop()
	close(s.stop)
	s.wg.Wait()
}

// watchConnectivity drains the queue whenever the link comes back up.
func (s *Syncer) watchConnectivity() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case state, ok := <-s.conn.Transitions():
			if !ok {
				return
			}
			if state == ledger.ConnOnline {
				s.logger.Info("connectivity restored, draining queue")
				s.drain()
			}
		}
	}
}

func (s *Syncer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := s.replayer.Drain(ctx)
	if err != nil {
		s.logger.Warn("drain stopped early", zap.Error(err),
			zap.Int("applied", report.Applied),
			zap.Int("remaining", report.Remaining))
		return
	}

	if report.Applied > 0 || report.Failed > 0 {
		s.logger.Info("queue drained",
			zap.Int("applied", report.Applied),
			zap.Int("failed", report.Failed),
			zap.Int("remaining", report.Remaining))
	}
	for _, c := range report.Conflicts {
		s.logger.Warn("queued mutation needs operator review",
			zap.String("item", c.Item.ID),
			zap.String("op", string(c.Item.Op)),
			zap.String("reason", c.Reason))
	}
	for _, it := range report.Stale {
		s.logger.Warn("queued mutation exceeded retention window",
			zap.String("item", it.ID),
			zap.Time("enqueued_at", it.EnqueuedAt))
	}
}
