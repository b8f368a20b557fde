package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы — строковые типы (как OrderStatus в order-service)
type PoolStatus string

const (
	PoolStatusOpen       PoolStatus = "POOL_STATUS_OPEN"
	PoolStatusLocked     PoolStatus = "POOL_STATUS_LOCKED"
	PoolStatusFulfilling PoolStatus = "POOL_STATUS_FULFILLING"
	PoolStatusFulfilled  PoolStatus = "POOL_STATUS_FULFILLED"
	PoolStatusFailed     PoolStatus = "POOL_STATUS_FAILED"
	PoolStatusCancelled  PoolStatus = "POOL_STATUS_CANCELLED"
)

// Terminal — пул в конечном состоянии, переходы дальше невозможны
func (s PoolStatus) Terminal() bool {
	return s == PoolStatusFulfilled || s == PoolStatusFailed || s == PoolStatusCancelled
}

type PledgeStatus string

const (
	PledgeStatusActive    PledgeStatus = "PLEDGE_STATUS_ACTIVE"
	PledgeStatusCancelled PledgeStatus = "PLEDGE_STATUS_CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusAuthorized     PaymentStatus = "PAYMENT_STATUS_AUTHORIZED"
	PaymentStatusCapturePending PaymentStatus = "PAYMENT_STATUS_CAPTURE_PENDING"
	PaymentStatusCaptured       PaymentStatus = "PAYMENT_STATUS_CAPTURED"
	PaymentStatusRefundPending  PaymentStatus = "PAYMENT_STATUS_REFUND_PENDING"
	PaymentStatusRefunded       PaymentStatus = "PAYMENT_STATUS_REFUNDED"
	PaymentStatusFailed         PaymentStatus = "PAYMENT_STATUS_FAILED"
)

// Resolved — платёж доведён до конечного состояния
func (s PaymentStatus) Resolved() bool {
	return s == PaymentStatusCaptured || s == PaymentStatusRefunded || s == PaymentStatusFailed
}

type Pool struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Title     string    `gorm:"type:text;not null"`

	TargetQty  int32      `gorm:"type:int;not null"` // неизменяемо после создания
	PledgedQty int32      `gorm:"type:int;not null;default:0"`
	DeadlineAt time.Time  `gorm:"not null;index"`
	Status     PoolStatus `gorm:"type:text;not null;default:'POOL_STATUS_OPEN';index"`

	UnitPriceCents int64  `gorm:"not null"`
	CurrencyCode   string `gorm:"type:char(3);not null"`

	MOQReachedAt    *time.Time `gorm:"column:moq_reached_at"`
	FulfillAttempts int32      `gorm:"type:int;not null;default:0"`
	ArchivedAt      *time.Time

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Pledges []Pledge `gorm:"foreignKey:PoolID"`
}

func (Pool) TableName() string { return "pools" }

type Pledge struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PoolID  uuid.UUID `gorm:"type:uuid;not null;index"`
	BuyerID uuid.UUID `gorm:"type:uuid;not null;index"`

	Quantity int32        `gorm:"type:int;not null"` // фиксируется при создании
	Status   PledgeStatus `gorm:"type:text;not null;default:'PLEDGE_STATUS_ACTIVE';index"`

	CancelledAt *time.Time

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Payment *Payment `gorm:"foreignKey:PledgeID"`
}

func (Pledge) TableName() string { return "pledges" }

type Payment struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PledgeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"` // 1:1 с pledge

	AmountCents  int64         `gorm:"not null"`
	CurrencyCode string        `gorm:"type:char(3);not null"`
	Status       PaymentStatus `gorm:"type:text;not null;default:'PAYMENT_STATUS_AUTHORIZED';index"`

	// Детерминированный ключ: выводится из pledge id + действия,
	// провайдер обязан дедуплицировать по нему.
	IdempotencyKey string  `gorm:"type:text;not null;uniqueIndex"`
	MethodRef      string  `gorm:"type:text;not null"`
	ProviderRef    *string `gorm:"type:text"`

	AttemptCount  int32 `gorm:"type:int;not null;default:0"`
	LastAttemptAt *time.Time
	FailReason    *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Payment) TableName() string { return "payments" }

// PoolStatusHistory — append-only аудит переходов; движок её не читает
type PoolStatusHistory struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PoolID uuid.UUID `gorm:"type:uuid;not null;index"`

	FromStatus  PoolStatus `gorm:"type:text;not null"`
	ToStatus    PoolStatus `gorm:"type:text;not null"`
	Automated   bool       `gorm:"not null;default:false"`
	TriggeredBy string     `gorm:"type:text;not null"`
	Notes       *string    `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (PoolStatusHistory) TableName() string { return "pool_status_history" }
