package migrate

import (
	"context"
	"pool-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto
	CreateChecks           bool // CHECK-constraint для целостности
	CreateIndexes          bool // индексы и UNIQUE
	CreateFKsViaSQL        bool // FK через SQL (поверх GORM-constraint)
	CreateUpdatedAtTrigger bool // триггер обновления updated_at
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
	}
}

func MigratePoolDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы данных пулов")

	if opt.CreateExtensions {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("Не удалось включить расширение pgcrypto", zap.Error(err))
			return err
		}
	}

	log.Info("Создание таблиц pools, pledges, payments, pool_status_history")
	if err := db.AutoMigrate(&models.Pool{}, &models.Pledge{}, &models.Payment{}, &models.PoolStatusHistory{}); err != nil {
		log.Error("Не удалось создать таблицы", zap.Error(err))
		return err
	}

	if opt.CreateUpdatedAtTrigger {
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_pools_updated ON pools;
CREATE TRIGGER trg_pools_updated
BEFORE UPDATE ON pools
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_pledges_updated ON pledges;
CREATE TRIGGER trg_pledges_updated
BEFORE UPDATE ON pledges
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_payments_updated ON payments;
CREATE TRIGGER trg_payments_updated
BEFORE UPDATE ON payments
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`).Error; err != nil {
			log.Error("Не удалось создать триггеры updated_at", zap.Error(err))
			return err
		}
	}

	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")

		// Статусы (храним TEXT)
		if err := db.Exec(`
ALTER TABLE pools
  DROP CONSTRAINT IF EXISTS chk_pools_status_allowed;
ALTER TABLE pools
  ADD CONSTRAINT chk_pools_status_allowed
  CHECK (status IN ('POOL_STATUS_OPEN','POOL_STATUS_LOCKED','POOL_STATUS_FULFILLING','POOL_STATUS_FULFILLED','POOL_STATUS_FAILED','POOL_STATUS_CANCELLED'));
`).Error; err != nil {
			log.Error("Не удалось создать CHECK для статусов пула", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE pledges
  DROP CONSTRAINT IF EXISTS chk_pledges_status_allowed;
ALTER TABLE pledges
  ADD CONSTRAINT chk_pledges_status_allowed
  CHECK (status IN ('PLEDGE_STATUS_ACTIVE','PLEDGE_STATUS_CANCELLED'));
`).Error; err != nil {
			log.Error("Не удалось создать CHECK для статусов pledge", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE payments
  DROP CONSTRAINT IF EXISTS chk_payments_status_allowed;
ALTER TABLE payments
  ADD CONSTRAINT chk_payments_status_allowed
  CHECK (status IN ('PAYMENT_STATUS_AUTHORIZED','PAYMENT_STATUS_CAPTURE_PENDING','PAYMENT_STATUS_CAPTURED','PAYMENT_STATUS_REFUND_PENDING','PAYMENT_STATUS_REFUNDED','PAYMENT_STATUS_FAILED'));
`).Error; err != nil {
			log.Error("Не удалось создать CHECK для статусов payment", zap.Error(err))
			return err
		}

		// Количества: цель > 0, агрегат не может уйти в минус
		if err := db.Exec(`
ALTER TABLE pools
  DROP CONSTRAINT IF EXISTS chk_pools_target_qty_gt_zero;
ALTER TABLE pools
  ADD CONSTRAINT chk_pools_target_qty_gt_zero
  CHECK (target_qty > 0);
ALTER TABLE pools
  DROP CONSTRAINT IF EXISTS chk_pools_pledged_qty_non_negative;
ALTER TABLE pools
  ADD CONSTRAINT chk_pools_pledged_qty_non_negative
  CHECK (pledged_qty >= 0);
`).Error; err != nil {
			log.Error("Не удалось создать CHECK для количеств пула", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE pledges
  DROP CONSTRAINT IF EXISTS chk_pledges_quantity_gt_zero;
ALTER TABLE pledges
  ADD CONSTRAINT chk_pledges_quantity_gt_zero
  CHECK (quantity > 0);
`).Error; err != nil {
			log.Error("Не удалось создать CHECK для pledges.quantity", zap.Error(err))
			return err
		}

		// Валюта (ровно 3 символа) и неотрицательная сумма
		if err := db.Exec(`
ALTER TABLE payments
  DROP CONSTRAINT IF EXISTS chk_payments_currency_code_len;
ALTER TABLE payments
  ADD CONSTRAINT chk_payments_currency_code_len
  CHECK (char_length(currency_code) = 3);
ALTER TABLE payments
  DROP CONSTRAINT IF EXISTS chk_payments_amount_non_negative;
ALTER TABLE payments
  ADD CONSTRAINT chk_payments_amount_non_negative
  CHECK (amount_cents >= 0);
`).Error; err != nil {
			log.Error("Не удалось создать CHECK для payments", zap.Error(err))
			return err
		}

		log.Info("CHECK-ограничения успешно созданы")
	}

	if opt.CreateIndexes {
		log.Info("Создание индексов")

		// Основная выборка реконсилера: просроченные пулы по статусу
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_pools_status_deadline
ON pools (status, deadline_at);
`).Error; err != nil {
			log.Error("Не удалось создать индекс ix_pools_status_deadline", zap.Error(err))
			return err
		}

		// Активные pledges пула
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_pledges_pool_status
ON pledges (pool_id, status);
`).Error; err != nil {
			log.Error("Не удалось создать индекс ix_pledges_pool_status", zap.Error(err))
			return err
		}

		// Pledges покупателя по дате
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_pledges_buyer_created
ON pledges (buyer_id, created_at DESC);
`).Error; err != nil {
			log.Error("Не удалось создать индекс ix_pledges_buyer_created", zap.Error(err))
			return err
		}

		log.Info("Индексы успешно созданы")
	}

	if opt.CreateFKsViaSQL {
		log.Info("Создание внешних ключей")

		if err := db.Exec(`
ALTER TABLE pledges
  DROP CONSTRAINT IF EXISTS fk_pledges_pool,
  ADD CONSTRAINT fk_pledges_pool
    FOREIGN KEY (pool_id) REFERENCES pools(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("Не удалось создать FK pledges.pool_id -> pools.id", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE payments
  DROP CONSTRAINT IF EXISTS fk_payments_pledge,
  ADD CONSTRAINT fk_payments_pledge
    FOREIGN KEY (pledge_id) REFERENCES pledges(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("Не удалось создать FK payments.pledge_id -> pledges.id", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE pool_status_history
  DROP CONSTRAINT IF EXISTS fk_history_pool,
  ADD CONSTRAINT fk_history_pool
    FOREIGN KEY (pool_id) REFERENCES pools(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("Не удалось создать FK pool_status_history.pool_id -> pools.id", zap.Error(err))
			return err
		}

		log.Info("Внешние ключи успешно созданы")
	}

	log.Info("Миграция базы данных пулов успешно завершена")
	return nil
}
