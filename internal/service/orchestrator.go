package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pool-service/internal/models"
	"pool-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProviderResult — ответ внешнего платёжного провайдера
type ProviderResult struct {
	Status      string
	ProviderRef string
}

// PaymentProvider — внешний провайдер; оба вызова обязаны быть
// идемпотентны по ключу
type PaymentProvider interface {
	Capture(ctx context.Context, idempotencyKey, methodRef string, amountCents int64, currency string) (ProviderResult, error)
	Refund(ctx context.Context, idempotencyKey, providerRef string) (ProviderResult, error)
}

// ProviderError — классифицированная ошибка провайдера.
// Retryable: таймаут/5xx. Не retryable: отклонённая карта и т.п.
type ProviderError struct {
	Retryable bool
	Reason    string
}

func (e *ProviderError) Error() string { return "provider: " + e.Reason }

// retryableProviderErr: неизвестные ошибки и таймауты считаем временными —
// успех никогда не предполагается
func retryableProviderErr(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

type PaymentOutcome int

const (
	OutcomeResolved PaymentOutcome = iota // платёж в нужном конечном статусе
	OutcomeRetrying                       // временная ошибка, повтор на следующем проходе
	OutcomeSkipped                        // окно backoff ещё не истекло
	OutcomeFailed                         // терминальный отказ, нужен ручной разбор
)

const (
	defaultMaxAttempts = 5
	backoffBase        = 30 * time.Second
	backoffCap         = time.Hour
)

type Orchestrator struct {
	repo        *repository.Repository
	provider    PaymentProvider
	events      EventBus
	log         *zap.Logger
	now         func() time.Time
	maxAttempts int32
}

func NewOrchestrator(repo *repository.Repository, provider PaymentProvider, events EventBus, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		repo:        repo,
		provider:    provider,
		events:      events,
		log:         log,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
}

func captureKey(p *models.Payment) string { return "capture:" + p.IdempotencyKey }
func refundKey(p *models.Payment) string  { return "refund:" + p.IdempotencyKey }

// backoffFor — экспоненциальная выдержка между проходами реконсилера
func backoffFor(attempts int32) time.Duration {
	d := backoffBase
	for i := int32(1); i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

func (o *Orchestrator) attemptDue(p *models.Payment, now time.Time) bool {
	if p.AttemptCount == 0 || p.LastAttemptAt == nil {
		return true
	}
	return !now.Before(p.LastAttemptAt.Add(backoffFor(p.AttemptCount)))
}

// Capture доводит платёж по пути AUTHORIZED -> CAPTURE_PENDING -> CAPTURED
func (o *Orchestrator) Capture(ctx context.Context, poolID uuid.UUID, p *models.Payment) PaymentOutcome {
	switch p.Status {
	case models.PaymentStatusCaptured:
		return OutcomeResolved
	case models.PaymentStatusFailed:
		return OutcomeFailed
	case models.PaymentStatusAuthorized:
		ok, err := o.repo.Payments.AdvanceStatus(ctx, p.ID, models.PaymentStatusAuthorized, models.PaymentStatusCapturePending)
		if err != nil {
			o.log.Error("advance to capture_pending failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
			return OutcomeRetrying
		}
		if !ok {
			// статус уже сдвинул предыдущий (упавший) проход — продолжаем
			o.log.Warn("payment already past authorized", zap.String("payment_id", p.ID.String()))
		}
		p.Status = models.PaymentStatusCapturePending
	case models.PaymentStatusCapturePending:
		// повтор после таймаута/5xx — тот же ключ, двойного списания не будет
	default:
		// refund-ветка на capture-пуле: смешения режимов быть не может
		o.log.Error("payment in refund path during capture",
			zap.String("payment_id", p.ID.String()), zap.String("status", string(p.Status)))
		return OutcomeFailed
	}

	now := o.now()
	if !o.attemptDue(p, now) {
		return OutcomeSkipped
	}
	if p.AttemptCount >= o.maxAttempts {
		return o.failPayment(ctx, poolID, p, models.PaymentStatusCapturePending,
			fmt.Sprintf("capture retry budget exhausted after %d attempts", p.AttemptCount))
	}

	if err := o.repo.Payments.RecordAttempt(ctx, p.ID, now); err != nil {
		o.log.Error("record attempt failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		return OutcomeRetrying
	}

	res, err := o.provider.Capture(ctx, captureKey(p), p.MethodRef, p.AmountCents, p.CurrencyCode)
	if err != nil {
		if retryableProviderErr(err) {
			o.log.Warn("capture attempt failed, will retry",
				zap.String("payment_id", p.ID.String()),
				zap.Int32("attempt", p.AttemptCount+1), zap.Error(err))
			return OutcomeRetrying
		}
		return o.failPayment(ctx, poolID, p, models.PaymentStatusCapturePending, err.Error())
	}

	if res.ProviderRef != "" {
		if err := o.repo.Payments.SetProviderRef(ctx, p.ID, res.ProviderRef); err != nil {
			o.log.Error("set provider ref failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		}
	}
	if _, err := o.repo.Payments.AdvanceStatus(ctx, p.ID, models.PaymentStatusCapturePending, models.PaymentStatusCaptured); err != nil {
		o.log.Error("advance to captured failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		return OutcomeRetrying
	}
	p.Status = models.PaymentStatusCaptured

	if o.events != nil {
		_ = o.events.PublishPaymentCaptured(ctx, PaymentCapturedEvent{
			PoolID:      poolID,
			PledgeID:    p.PledgeID,
			PaymentID:   p.ID,
			AmountCents: p.AmountCents,
			Currency:    p.CurrencyCode,
			CapturedAt:  now,
		})
	}
	return OutcomeResolved
}

// Refund — симметричный путь AUTHORIZED -> REFUND_PENDING -> REFUNDED
func (o *Orchestrator) Refund(ctx context.Context, poolID uuid.UUID, p *models.Payment) PaymentOutcome {
	switch p.Status {
	case models.PaymentStatusRefunded:
		return OutcomeResolved
	case models.PaymentStatusFailed:
		return OutcomeFailed
	case models.PaymentStatusAuthorized:
		ok, err := o.repo.Payments.AdvanceStatus(ctx, p.ID, models.PaymentStatusAuthorized, models.PaymentStatusRefundPending)
		if err != nil {
			o.log.Error("advance to refund_pending failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
			return OutcomeRetrying
		}
		if !ok {
			o.log.Warn("payment already past authorized", zap.String("payment_id", p.ID.String()))
		}
		p.Status = models.PaymentStatusRefundPending
	case models.PaymentStatusRefundPending:
	default:
		o.log.Error("payment in capture path during refund",
			zap.String("payment_id", p.ID.String()), zap.String("status", string(p.Status)))
		return OutcomeFailed
	}

	now := o.now()
	if !o.attemptDue(p, now) {
		return OutcomeSkipped
	}
	if p.AttemptCount >= o.maxAttempts {
		return o.failPayment(ctx, poolID, p, models.PaymentStatusRefundPending,
			fmt.Sprintf("refund retry budget exhausted after %d attempts", p.AttemptCount))
	}

	if err := o.repo.Payments.RecordAttempt(ctx, p.ID, now); err != nil {
		o.log.Error("record attempt failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		return OutcomeRetrying
	}

	var providerRef string
	if p.ProviderRef != nil {
		providerRef = *p.ProviderRef
	}
	if _, err := o.provider.Refund(ctx, refundKey(p), providerRef); err != nil {
		if retryableProviderErr(err) {
			o.log.Warn("refund attempt failed, will retry",
				zap.String("payment_id", p.ID.String()),
				zap.Int32("attempt", p.AttemptCount+1), zap.Error(err))
			return OutcomeRetrying
		}
		return o.failPayment(ctx, poolID, p, models.PaymentStatusRefundPending, err.Error())
	}

	if _, err := o.repo.Payments.AdvanceStatus(ctx, p.ID, models.PaymentStatusRefundPending, models.PaymentStatusRefunded); err != nil {
		o.log.Error("advance to refunded failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		return OutcomeRetrying
	}
	p.Status = models.PaymentStatusRefunded

	if o.events != nil {
		_ = o.events.PublishPaymentRefunded(ctx, PaymentRefundedEvent{
			PoolID:      poolID,
			PledgeID:    p.PledgeID,
			PaymentID:   p.ID,
			AmountCents: p.AmountCents,
			Currency:    p.CurrencyCode,
			RefundedAt:  now,
		})
	}
	return OutcomeResolved
}

func (o *Orchestrator) failPayment(ctx context.Context, poolID uuid.UUID, p *models.Payment, from models.PaymentStatus, reason string) PaymentOutcome {
	if _, err := o.repo.Payments.MarkFailed(ctx, p.ID, from, reason); err != nil {
		o.log.Error("mark payment failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
		return OutcomeRetrying
	}
	p.Status = models.PaymentStatusFailed

	o.log.Error("payment needs manual intervention",
		zap.String("pool_id", poolID.String()),
		zap.String("payment_id", p.ID.String()),
		zap.String("reason", reason))

	if o.events != nil {
		_ = o.events.PublishPaymentAlert(ctx, PaymentAlertEvent{
			PoolID:    poolID,
			PledgeID:  p.PledgeID,
			PaymentID: p.ID,
			Reason:    reason,
			At:        o.now(),
		})
	}
	return OutcomeFailed
}
