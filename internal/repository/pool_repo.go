package repository

import (
	"context"
	"errors"
	"time"

	"pool-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PoolListFilter struct {
	ProductID *uuid.UUID
	Status    *models.PoolStatus
	Limit     int
	Offset    int
}

type PoolRepo interface {
	Create(ctx context.Context, p *models.Pool) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Pool, error)
	List(ctx context.Context, f PoolListFilter) ([]*models.Pool, int64, error)

	// ListDue возвращает пулы, требующие реконсиляции: просроченные OPEN
	// плюс застрявшие в LOCKED/FULFILLING (обрыв прошлого прохода, ретраи)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Pool, error)

	// AdjustPledged атомарно меняет агрегат на delta, только пока пул OPEN
	// и агрегат не уходит в минус. false — пул уже не OPEN или нехватка.
	AdjustPledged(ctx context.Context, id uuid.UUID, delta int32) (bool, error)

	// TransitionStatus — условный переход "set status=to where status=from".
	// false означает, что переход уже выполнил другой вызов.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PoolStatus) (bool, error)

	// MarkMOQReached ставит moq_reached_at один раз (null-guard)
	MarkMOQReached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	IncrementFulfillAttempts(ctx context.Context, id uuid.UUID) (int32, error)
	Archive(ctx context.Context, id uuid.UUID, at time.Time) error
}

type poolRepo struct{ db *gorm.DB }

func NewPoolRepo(db *gorm.DB) PoolRepo { return &poolRepo{db: db} }

func (r *poolRepo) Create(ctx context.Context, p *models.Pool) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *poolRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	var p models.Pool
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *poolRepo) List(ctx context.Context, f PoolListFilter) ([]*models.Pool, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Pool{}).Where("archived_at IS NULL")

	if f.ProductID != nil {
		q = q.Where("product_id = ?", *f.ProductID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []*models.Pool
	err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error
	return list, total, err
}

func (r *poolRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Pool, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []*models.Pool
	err := r.db.WithContext(ctx).
		Where("deadline_at <= ? AND status IN ?", now,
			[]models.PoolStatus{models.PoolStatusOpen, models.PoolStatusLocked, models.PoolStatusFulfilling}).
		Order("deadline_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *poolRepo) AdjustPledged(ctx context.Context, id uuid.UUID, delta int32) (bool, error) {
	// атомарный инкремент: никаких read-modify-write в памяти приложения
	tx := r.db.WithContext(ctx).Exec(`
UPDATE pools
SET pledged_qty = pledged_qty + @delta
WHERE id = @id
  AND status = @open
  AND pledged_qty + @delta >= 0
`, map[string]any{
		"id":    id,
		"delta": delta,
		"open":  models.PoolStatusOpen,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *poolRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PoolStatus) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Pool{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return tx.RowsAffected > 0, tx.Error
}

func (r *poolRepo) MarkMOQReached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE pools
SET moq_reached_at = @at
WHERE id = @id
  AND moq_reached_at IS NULL
  AND pledged_qty >= target_qty
`, map[string]any{
		"id": id,
		"at": at,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *poolRepo) IncrementFulfillAttempts(ctx context.Context, id uuid.UUID) (int32, error) {
	var attempts int32
	err := r.db.WithContext(ctx).Raw(`
UPDATE pools
SET fulfill_attempts = fulfill_attempts + 1
WHERE id = ?
RETURNING fulfill_attempts
`, id).Scan(&attempts).Error
	return attempts, err
}

func (r *poolRepo) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Pool{}).
		Where("id = ?", id).
		Update("archived_at", at).Error
}
