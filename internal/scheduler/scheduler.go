package scheduler

import (
	"context"
	"time"

	"pool-service/internal/service"

	"go.uber.org/zap"
)

// Scheduler периодически дергает реконсилер. Сам движок
// от него не зависит: тот же ReconcileDue доступен внешнему cron
// через HTTP-триггер, и несколько реплик могут работать одновременно.
type Scheduler struct {
	reconciler *service.Reconciler
	interval   time.Duration
	log        *zap.Logger
	stopCh     chan struct{}
}

func NewScheduler(reconciler *service.Reconciler, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

// Start запускает цикл реконсиляции
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting reconcile scheduler", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop останавливает планировщик
func (s *Scheduler) Stop() {
	s.log.Info("stopping reconcile scheduler")
	close(s.stopCh)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Выполняем сразу при старте
	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopCh:
			s.log.Info("reconcile scheduler stopped")
			return
		case <-ctx.Done():
			s.log.Info("reconcile scheduler cancelled")
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	results, err := s.reconciler.ReconcileDue(ctx, time.Now())
	if err != nil {
		s.log.Error("reconcile pass failed", zap.Error(err))
		return
	}
	if len(results) > 0 {
		s.log.Info("reconcile pass completed", zap.Int("pools", len(results)))
	}
}
