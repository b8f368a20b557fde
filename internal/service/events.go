package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PoolLockedEvent struct {
	PoolID     uuid.UUID `json:"pool_id"`
	TargetQty  int32     `json:"target_qty"`
	PledgedQty int32     `json:"pledged_qty"`
	TargetMet  bool      `json:"target_met"`
	LockedAt   time.Time `json:"locked_at"`
}

type MOQReachedEvent struct {
	PoolID     uuid.UUID `json:"pool_id"`
	TargetQty  int32     `json:"target_qty"`
	PledgedQty int32     `json:"pledged_qty"`
	ReachedAt  time.Time `json:"reached_at"`
}

type PaymentCapturedEvent struct {
	PoolID      uuid.UUID `json:"pool_id"`
	PledgeID    uuid.UUID `json:"pledge_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	CapturedAt  time.Time `json:"captured_at"`
}

type PaymentRefundedEvent struct {
	PoolID      uuid.UUID `json:"pool_id"`
	PledgeID    uuid.UUID `json:"pledge_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	RefundedAt  time.Time `json:"refunded_at"`
}

type PoolFulfilledEvent struct {
	PoolID      uuid.UUID `json:"pool_id"`
	PledgedQty  int32     `json:"pledged_qty"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

type PoolFailedEvent struct {
	PoolID   uuid.UUID `json:"pool_id"`
	Reason   string    `json:"reason,omitempty"`
	FailedAt time.Time `json:"failed_at"`
}

// PaymentAlertEvent — эскалация для ручного разбора (терминальная ошибка
// провайдера или исчерпанный бюджет ретраев)
type PaymentAlertEvent struct {
	PoolID    uuid.UUID `json:"pool_id"`
	PledgeID  uuid.UUID `json:"pledge_id,omitempty"`
	PaymentID uuid.UUID `json:"payment_id,omitempty"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// EventBus — исходящие доменные события; движок не ждёт их доставки
type EventBus interface {
	PublishPoolLocked(ctx context.Context, e PoolLockedEvent) error
	PublishMOQReached(ctx context.Context, e MOQReachedEvent) error
	PublishPaymentCaptured(ctx context.Context, e PaymentCapturedEvent) error
	PublishPaymentRefunded(ctx context.Context, e PaymentRefundedEvent) error
	PublishPoolFulfilled(ctx context.Context, e PoolFulfilledEvent) error
	PublishPoolFailed(ctx context.Context, e PoolFailedEvent) error
	PublishPaymentAlert(ctx context.Context, e PaymentAlertEvent) error
}
