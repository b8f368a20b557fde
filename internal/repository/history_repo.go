package repository

import (
	"context"

	"pool-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HistoryRepo interface {
	Append(ctx context.Context, h *models.PoolStatusHistory) error
	ListByPool(ctx context.Context, poolID uuid.UUID) ([]models.PoolStatusHistory, error)
}

type historyRepo struct{ db *gorm.DB }

func NewHistoryRepo(db *gorm.DB) HistoryRepo { return &historyRepo{db: db} }

func (r *historyRepo) Append(ctx context.Context, h *models.PoolStatusHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *historyRepo) ListByPool(ctx context.Context, poolID uuid.UUID) ([]models.PoolStatusHistory, error) {
	var list []models.PoolStatusHistory
	err := r.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}
