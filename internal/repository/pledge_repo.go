package repository

import (
	"context"
	"errors"
	"time"

	"pool-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PledgeRepo interface {
	Create(ctx context.Context, p *models.Pledge) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Pledge, error)
	ListActiveByPool(ctx context.Context, poolID uuid.UUID) ([]models.Pledge, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.Pledge, int64, error)

	// MarkCancelled переводит ACTIVE -> CANCELLED; false, если pledge уже отменён
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type pledgeRepo struct{ db *gorm.DB }

func NewPledgeRepo(db *gorm.DB) PledgeRepo { return &pledgeRepo{db: db} }

func (r *pledgeRepo) Create(ctx context.Context, p *models.Pledge) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *pledgeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Pledge, error) {
	var pl models.Pledge
	err := r.db.WithContext(ctx).Preload("Payment").First(&pl, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &pl, err
}

func (r *pledgeRepo) ListActiveByPool(ctx context.Context, poolID uuid.UUID) ([]models.Pledge, error) {
	var list []models.Pledge
	err := r.db.WithContext(ctx).
		Preload("Payment").
		Where("pool_id = ? AND status = ?", poolID, models.PledgeStatusActive).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *pledgeRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.Pledge, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Pledge{}).Where("buyer_id = ?", buyerID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var list []models.Pledge
	err := q.Preload("Payment").Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *pledgeRepo) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Pledge{}).
		Where("id = ? AND status = ?", id, models.PledgeStatusActive).
		Updates(map[string]any{
			"status":       models.PledgeStatusCancelled,
			"cancelled_at": at,
		})
	return tx.RowsAffected > 0, tx.Error
}
