package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	billingsync "github.com/smallbiznis/metra/internal/billingsync/service"
	"github.com/smallbiznis/metra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler runs the billing reconciliation on an interval. A run still in
// flight when the next tick fires is skipped, not queued.
type Scheduler struct {
	sync     *billingsync.Service
	interval time.Duration
	log      *zap.Logger

	busy   atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

type Params struct {
	fx.In

	Config config.Config
	Sync   *billingsync.Service
	Logger *zap.Logger
}

func New(p Params) *Scheduler {
	return &Scheduler{
		sync:     p.Sync,
		interval: p.Config.BillingSyncInterval,
		log:      p.Logger.Named("scheduler"),
	}
}

// Register hooks the scheduler into the fx lifecycle. A non-positive
// interval disables it.
func Register(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.start()
			return nil
		},
		OnStop: func(context.Context) error {
			s.stop()
			return nil
		},
	})
}

func (s *Scheduler) start() {
	if s.interval <= 0 {
		s.log.Info("billing sync scheduler disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("billing sync scheduler started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *Scheduler) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("billing sync scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Warn("billing sync still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	created, err := s.sync.SyncMissing(ctx)
	if err != nil {
		s.log.Error("billing sync run failed", zap.Error(err))
		return
	}
	s.log.Debug("billing sync run finished", zap.Int("created", len(created)))
}
