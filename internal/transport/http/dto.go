package http

import (
	"time"

	"pool-service/internal/models"

	"github.com/google/uuid"
)

type CreatePoolRequest struct {
	ProductID      uuid.UUID `json:"product_id" binding:"required"`
	Title          string    `json:"title" binding:"required"`
	TargetQty      int32     `json:"target_qty" binding:"required"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	CurrencyCode   string    `json:"currency_code" binding:"required,len=3"`
	DeadlineAt     time.Time `json:"deadline_at" binding:"required"`
}

type CancelPoolRequest struct {
	Reason *string `json:"reason"`
}

type AddPledgeRequest struct {
	Quantity  int32  `json:"quantity" binding:"required"`
	MethodRef string `json:"method_ref" binding:"required"`
}

type PoolResponse struct {
	ID           uuid.UUID         `json:"id"`
	ProductID    uuid.UUID         `json:"product_id"`
	Title        string            `json:"title"`
	TargetQty    int32             `json:"target_qty"`
	PledgedQty   int32             `json:"pledged_qty"`
	DeadlineAt   time.Time         `json:"deadline_at"`
	Status       models.PoolStatus `json:"status"`
	MOQReachedAt *time.Time        `json:"moq_reached_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func toPoolResponse(p *models.Pool) PoolResponse {
	return PoolResponse{
		ID:           p.ID,
		ProductID:    p.ProductID,
		Title:        p.Title,
		TargetQty:    p.TargetQty,
		PledgedQty:   p.PledgedQty,
		DeadlineAt:   p.DeadlineAt,
		Status:       p.Status,
		MOQReachedAt: p.MOQReachedAt,
		CreatedAt:    p.CreatedAt,
	}
}

type PaymentResponse struct {
	ID           uuid.UUID            `json:"id"`
	AmountCents  int64                `json:"amount_cents"`
	CurrencyCode string               `json:"currency_code"`
	Status       models.PaymentStatus `json:"status"`
}

type PledgeResponse struct {
	ID        uuid.UUID           `json:"id"`
	PoolID    uuid.UUID           `json:"pool_id"`
	Quantity  int32               `json:"quantity"`
	Status    models.PledgeStatus `json:"status"`
	Payment   *PaymentResponse    `json:"payment,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func toPledgeResponse(p *models.Pledge) PledgeResponse {
	resp := PledgeResponse{
		ID:        p.ID,
		PoolID:    p.PoolID,
		Quantity:  p.Quantity,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
	if p.Payment != nil {
		resp.Payment = &PaymentResponse{
			ID:           p.Payment.ID,
			AmountCents:  p.Payment.AmountCents,
			CurrencyCode: p.Payment.CurrencyCode,
			Status:       p.Payment.Status,
		}
	}
	return resp
}

type ListResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
