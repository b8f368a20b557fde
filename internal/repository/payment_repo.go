package repository

import (
	"context"
	"errors"
	"time"

	"pool-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepo interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByPledge(ctx context.Context, pledgeID uuid.UUID) (*models.Payment, error)

	// Платежи активных pledges пула — рабочее множество оркестратора
	ListActiveByPool(ctx context.Context, poolID uuid.UUID) ([]models.Payment, error)

	// AdvanceStatus — условный переход вперёд; false, если статус уже не from.
	// Статусы двигаются только вперёд, назад пути нет.
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus) (bool, error)

	RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
	SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error
	MarkFailed(ctx context.Context, id uuid.UUID, from models.PaymentStatus, reason string) (bool, error)
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) PaymentRepo { return &paymentRepo{db: db} }

func (r *paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var pay models.Payment
	err := r.db.WithContext(ctx).First(&pay, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &pay, err
}

func (r *paymentRepo) GetByPledge(ctx context.Context, pledgeID uuid.UUID) (*models.Payment, error) {
	var pay models.Payment
	err := r.db.WithContext(ctx).First(&pay, "pledge_id = ?", pledgeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &pay, err
}

func (r *paymentRepo) ListActiveByPool(ctx context.Context, poolID uuid.UUID) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.WithContext(ctx).
		Joins("JOIN pledges ON pledges.id = payments.pledge_id").
		Where("pledges.pool_id = ? AND pledges.status = ?", poolID, models.PledgeStatusActive).
		Order("payments.created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *paymentRepo) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return tx.RowsAffected > 0, tx.Error
}

func (r *paymentRepo) RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Exec(`
UPDATE payments
SET attempt_count = attempt_count + 1,
    last_attempt_at = @at
WHERE id = @id
`, map[string]any{"id": id, "at": at}).Error
}

func (r *paymentRepo) SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Update("provider_ref", ref).Error
}

func (r *paymentRepo) MarkFailed(ctx context.Context, id uuid.UUID, from models.PaymentStatus, reason string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":      models.PaymentStatusFailed,
			"fail_reason": reason,
		})
	return tx.RowsAffected > 0, tx.Error
}
