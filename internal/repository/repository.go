package repository

import (
	"context"

	"gorm.io/gorm"
)

type Repository struct {
	DB       *gorm.DB
	Pools    PoolRepo
	Pledges  PledgeRepo
	Payments PaymentRepo
	History  HistoryRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:       db,
		Pools:    NewPoolRepo(db),
		Pledges:  NewPledgeRepo(db),
		Payments: NewPaymentRepo(db),
		History:  NewHistoryRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// WithTx выполняет fn в одной транзакции: все репозитории внутри
// работают поверх tx (как в inventory-service). Без DB-хендла
// (собранный вручную Repository в юнит-тестах) — без транзакции.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.DB == nil {
		return fn(r)
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}
