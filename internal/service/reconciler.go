package service

import (
	"context"
	"time"

	"pool-service/internal/models"
	"pool-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	triggeredByReconciler = "reconciler"
	defaultMaxPasses      = 5
	defaultDueBatch       = 100
)

type ReconcileResult struct {
	PoolID    uuid.UUID
	Locked    bool // этот вызов выполнил OPEN -> LOCKED
	TargetMet bool
	Status    models.PoolStatus
	Captured  int
	Refunded  int
	Failed    int
	Pending   int
}

// Reconciler — единственный компонент, выводящий пул из OPEN.
// Координация между параллельными вызовами идёт исключительно через
// условные переходы статуса в хранилище.
type Reconciler struct {
	repo      *repository.Repository
	orch      *Orchestrator
	events    EventBus
	log       *zap.Logger
	now       func() time.Time
	maxPasses int32
	dueBatch  int
}

func NewReconciler(repo *repository.Repository, orch *Orchestrator, events EventBus, log *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		orch:      orch,
		events:    events,
		log:       log,
		now:       time.Now,
		maxPasses: defaultMaxPasses,
		dueBatch:  defaultDueBatch,
	}
}

func (r *Reconciler) ReconcileDue(ctx context.Context, now time.Time) ([]ReconcileResult, error) {
	due, err := r.repo.Pools.ListDue(ctx, now, r.dueBatch)
	if err != nil {
		return nil, err
	}

	results := make([]ReconcileResult, 0, len(due))
	for _, pool := range due {
		res, claimed := r.reconcilePool(ctx, pool)
		if !claimed {
			// условный переход выполнил другой вызов — не ошибка
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Reconciler) reconcilePool(ctx context.Context, pool *models.Pool) (ReconcileResult, bool) {
	res := ReconcileResult{PoolID: pool.ID}

	if pool.Status == models.PoolStatusOpen {
		locked, err := r.repo.Pools.TransitionStatus(ctx, pool.ID, models.PoolStatusOpen, models.PoolStatusLocked)
		if err != nil {
			r.log.Error("lock transition failed", zap.String("pool_id", pool.ID.String()), zap.Error(err))
			return res, false
		}
		if !locked {
			return res, false
		}
		res.Locked = true

		r.appendHistory(ctx, pool.ID, models.PoolStatusOpen, models.PoolStatusLocked, nil)

		// перечитываем замороженный агрегат
		fresh, err := r.repo.Pools.GetByID(ctx, pool.ID)
		if err != nil || fresh == nil {
			r.log.Error("reload after lock failed", zap.String("pool_id", pool.ID.String()), zap.Error(err))
			return res, true
		}
		pool = fresh

		if r.events != nil {
			_ = r.events.PublishPoolLocked(ctx, PoolLockedEvent{
				PoolID:     pool.ID,
				TargetQty:  pool.TargetQty,
				PledgedQty: pool.PledgedQty,
				TargetMet:  pool.PledgedQty >= pool.TargetQty,
				LockedAt:   r.now(),
			})
		}
	}

	// После лока pledged_qty заморожен, решение детерминировано
	met := pool.PledgedQty >= pool.TargetQty
	res.TargetMet = met

	if pool.Status == models.PoolStatusLocked {
		ok, err := r.repo.Pools.TransitionStatus(ctx, pool.ID, models.PoolStatusLocked, models.PoolStatusFulfilling)
		if err != nil {
			r.log.Error("fulfilling transition failed", zap.String("pool_id", pool.ID.String()), zap.Error(err))
			res.Status = models.PoolStatusLocked
			return res, res.Locked
		}
		if !ok && !res.Locked {
			return res, false
		}
		r.appendHistory(ctx, pool.ID, models.PoolStatusLocked, models.PoolStatusFulfilling, nil)
	}
	res.Status = models.PoolStatusFulfilling

	payments, err := r.repo.Payments.ListActiveByPool(ctx, pool.ID)
	if err != nil {
		r.log.Error("list payments failed", zap.String("pool_id", pool.ID.String()), zap.Error(err))
		return res, true
	}

	for i := range payments {
		p := &payments[i]
		var outcome PaymentOutcome
		if met {
			outcome = r.orch.Capture(ctx, pool.ID, p)
		} else {
			outcome = r.orch.Refund(ctx, pool.ID, p)
		}
		switch outcome {
		case OutcomeResolved:
			if met {
				res.Captured++
			} else {
				res.Refunded++
			}
		case OutcomeFailed:
			res.Failed++
		default:
			res.Pending++
		}
	}

	res.Status = r.finishPool(ctx, pool, met, &res)
	return res, true
}

// finishPool подводит итог прохода: терминальный переход, ещё один проход
// или эскалация после исчерпания бюджета
func (r *Reconciler) finishPool(ctx context.Context, pool *models.Pool, met bool, res *ReconcileResult) models.PoolStatus {
	if res.Pending == 0 && res.Failed == 0 {
		if met {
			return r.terminate(ctx, pool, models.PoolStatusFulfilled, "")
		}
		return r.terminate(ctx, pool, models.PoolStatusFailed, "target not met at deadline")
	}

	// Платежи в PENDING или терминально упавшие: пул остаётся в FULFILLING,
	// чтобы следующий проход доретраил, а FAILED-платёж разобрали руками —
	// но не бесконечно
	attempts, err := r.repo.Pools.IncrementFulfillAttempts(ctx, pool.ID)
	if err != nil {
		r.log.Error("increment fulfill attempts failed", zap.String("pool_id", pool.ID.String()), zap.Error(err))
		return models.PoolStatusFulfilling
	}
	if attempts < r.maxPasses {
		r.log.Info("pool left fulfilling for next pass",
			zap.String("pool_id", pool.ID.String()),
			zap.Int32("attempts", attempts),
			zap.Int("pending", res.Pending),
			zap.Int("failed", res.Failed))
		return models.PoolStatusFulfilling
	}

	if r.events != nil {
		_ = r.events.PublishPaymentAlert(ctx, PaymentAlertEvent{
			PoolID: pool.ID,
			Reason: "fulfillment pass budget exhausted, manual review required",
			At:     r.now(),
		})
	}
	return r.terminate(ctx, pool, models.PoolStatusFailed, "fulfillment pass budget exhausted")
}

func (r *Reconciler) terminate(ctx context.Context, pool *models.Pool, to models.PoolStatus, reason string) models.PoolStatus {
	ok, err := r.repo.Pools.TransitionStatus(ctx, pool.ID, models.PoolStatusFulfilling, to)
	if err != nil {
		r.log.Error("terminal transition failed", zap.String("pool_id", pool.ID.String()), zap.Error(err))
		return models.PoolStatusFulfilling
	}
	if !ok {
		return models.PoolStatusFulfilling
	}

	var notes *string
	if reason != "" {
		notes = &reason
	}
	r.appendHistory(ctx, pool.ID, models.PoolStatusFulfilling, to, notes)

	now := r.now()
	if r.events != nil {
		switch to {
		case models.PoolStatusFulfilled:
			_ = r.events.PublishPoolFulfilled(ctx, PoolFulfilledEvent{
				PoolID:      pool.ID,
				PledgedQty:  pool.PledgedQty,
				FulfilledAt: now,
			})
		case models.PoolStatusFailed:
			_ = r.events.PublishPoolFailed(ctx, PoolFailedEvent{
				PoolID:   pool.ID,
				Reason:   reason,
				FailedAt: now,
			})
		}
	}

	r.log.Info("pool reconciled",
		zap.String("pool_id", pool.ID.String()),
		zap.String("status", string(to)))
	return to
}

func (r *Reconciler) appendHistory(ctx context.Context, poolID uuid.UUID, from, to models.PoolStatus, notes *string) {
	if err := r.repo.History.Append(ctx, &models.PoolStatusHistory{
		PoolID:      poolID,
		FromStatus:  from,
		ToStatus:    to,
		Automated:   true,
		TriggeredBy: triggeredByReconciler,
		Notes:       notes,
	}); err != nil {
		// аудит не должен останавливать реконсиляцию
		r.log.Error("append status history failed", zap.String("pool_id", poolID.String()), zap.Error(err))
	}
}
