package service

import (
	"context"
	"time"

	"pool-service/internal/models"

	"github.com/google/uuid"
)

type CreatePoolInput struct {
	ProductID      uuid.UUID
	Title          string
	TargetQty      int32
	UnitPriceCents int64
	CurrencyCode   string
	DeadlineAt     time.Time
}

type AddPledgeInput struct {
	PoolID    uuid.UUID
	BuyerID   uuid.UUID
	Quantity  int32
	MethodRef string // ссылка на платёжное средство покупателя у провайдера
}

type ListFilter struct {
	ProductID *uuid.UUID
	Status    *models.PoolStatus
	Limit     int
	Offset    int
}

type PoolService interface {
	CreatePool(ctx context.Context, in CreatePoolInput) (*models.Pool, error)
	CancelPool(ctx context.Context, id uuid.UUID, actor string, reason *string) error

	// ArchivePool прячет завершённый пул из листингов; данные не удаляются
	ArchivePool(ctx context.Context, id uuid.UUID) error

	AddPledge(ctx context.Context, in AddPledgeInput) (*models.Pledge, error)
	CancelPledge(ctx context.Context, pledgeID, buyerID uuid.UUID) error

	// Read-only доступ для UI/API; никогда не двигает статусы
	GetPool(ctx context.Context, id uuid.UUID) (*models.Pool, error)
	ListPools(ctx context.Context, f ListFilter) ([]models.Pool, int64, error)
	GetPledge(ctx context.Context, id, buyerID uuid.UUID) (*models.Pledge, error)
	ListBuyerPledges(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.Pledge, int64, error)
}
