package service

import (
	"context"
	"strings"
	"time"

	"pool-service/internal/models"
	"pool-service/internal/repository"

	"github.com/google/uuid"
)

type poolService struct {
	repo   *repository.Repository
	events EventBus
	now    func() time.Time
}

func NewPoolService(repo *repository.Repository, events EventBus) PoolService {
	return &poolService{
		repo:   repo,
		events: events,
		now:    time.Now,
	}
}

func (s *poolService) CreatePool(ctx context.Context, in CreatePoolInput) (*models.Pool, error) {
	if in.TargetQty <= 0 {
		return nil, ErrTargetInvalid
	}
	if in.UnitPriceCents < 0 {
		return nil, ErrPriceInvalid
	}
	now := s.now()
	if !in.DeadlineAt.After(now) {
		return nil, ErrDeadlineInvalid
	}

	p := &models.Pool{
		ProductID:      in.ProductID,
		Title:          strings.TrimSpace(in.Title),
		TargetQty:      in.TargetQty,
		PledgedQty:     0,
		DeadlineAt:     in.DeadlineAt,
		Status:         models.PoolStatusOpen,
		UnitPriceCents: in.UnitPriceCents,
		CurrencyCode:   in.CurrencyCode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Pools.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CancelPool — ручная отмена до дедлайна (отдельная терминальная ветка OPEN -> CANCELLED)
func (s *poolService) CancelPool(ctx context.Context, id uuid.UUID, actor string, reason *string) error {
	pool, err := s.repo.Pools.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if pool == nil {
		return ErrPoolNotFound
	}

	ok, err := s.repo.Pools.TransitionStatus(ctx, id, models.PoolStatusOpen, models.PoolStatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPoolLocked
	}

	_ = s.repo.History.Append(ctx, &models.PoolStatusHistory{
		PoolID:      id,
		FromStatus:  models.PoolStatusOpen,
		ToStatus:    models.PoolStatusCancelled,
		Automated:   false,
		TriggeredBy: actor,
		Notes:       reason,
	})

	if s.events != nil {
		msg := "cancelled by operator"
		if reason != nil && *reason != "" {
			msg = *reason
		}
		_ = s.events.PublishPoolFailed(ctx, PoolFailedEvent{
			PoolID:   id,
			Reason:   msg,
			FailedAt: s.now(),
		})
	}
	return nil
}

func (s *poolService) ArchivePool(ctx context.Context, id uuid.UUID) error {
	pool, err := s.repo.Pools.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if pool == nil || pool.ArchivedAt != nil {
		return ErrPoolNotFound
	}
	if !pool.Status.Terminal() {
		return ErrPoolNotTerminal
	}
	return s.repo.Pools.Archive(ctx, id, s.now())
}

func (s *poolService) AddPledge(ctx context.Context, in AddPledgeInput) (*models.Pledge, error) {
	if in.Quantity <= 0 {
		return nil, ErrQuantityInvalid
	}

	pool, err := s.repo.Pools.GetByID(ctx, in.PoolID)
	if err != nil {
		return nil, err
	}
	if pool == nil || pool.ArchivedAt != nil {
		return nil, ErrPoolNotFound
	}
	if pool.Status != models.PoolStatusOpen {
		return nil, ErrPoolClosed
	}
	now := s.now()
	if !pool.DeadlineAt.After(now) {
		return nil, ErrPoolExpired
	}

	var (
		pledge     *models.Pledge
		moqCrossed bool
	)

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		// Атомарный инкремент с гардом на OPEN — именно он закрывает гонку
		// «pledge против лока»; предпроверка выше только для ранних ошибок.
		ok, err := tx.Pools.AdjustPledged(ctx, in.PoolID, in.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPoolClosed
		}

		pledge = &models.Pledge{
			PoolID:    in.PoolID,
			BuyerID:   in.BuyerID,
			Quantity:  in.Quantity,
			Status:    models.PledgeStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Pledges.Create(ctx, pledge); err != nil {
			return err
		}

		// Авторизационный холд; capture/refund выполняет только оркестратор
		payment := &models.Payment{
			PledgeID:       pledge.ID,
			AmountCents:    int64(in.Quantity) * pool.UnitPriceCents,
			CurrencyCode:   pool.CurrencyCode,
			Status:         models.PaymentStatusAuthorized,
			IdempotencyKey: pledge.ID.String(),
			MethodRef:      in.MethodRef,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Payments.Create(ctx, payment); err != nil {
			return err
		}
		pledge.Payment = payment

		// moq_reached_at ставится ровно один раз (null-guard в SQL)
		moqCrossed, err = tx.Pools.MarkMOQReached(ctx, in.PoolID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if moqCrossed && s.events != nil {
		_ = s.events.PublishMOQReached(ctx, MOQReachedEvent{
			PoolID:     in.PoolID,
			TargetQty:  pool.TargetQty,
			PledgedQty: pool.PledgedQty + in.Quantity,
			ReachedAt:  now,
		})
	}

	return pledge, nil
}

func (s *poolService) CancelPledge(ctx context.Context, pledgeID, buyerID uuid.UUID) error {
	pledge, err := s.repo.Pledges.GetByID(ctx, pledgeID)
	if err != nil {
		return err
	}
	if pledge == nil {
		return ErrPledgeNotFound
	}
	if pledge.BuyerID != buyerID {
		return ErrForbidden
	}
	if pledge.Status == models.PledgeStatusCancelled {
		return ErrAlreadyCancelled
	}

	now := s.now()
	return s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.Pledges.MarkCancelled(ctx, pledgeID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyCancelled
		}

		// Декремент с тем же гардом на OPEN: после лока отмена отклоняется,
		// а откат транзакции вернёт pledge в ACTIVE
		ok, err = tx.Pools.AdjustPledged(ctx, pledge.PoolID, -pledge.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPoolLocked
		}
		return nil
	})
}

func (s *poolService) GetPool(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	pool, err := s.repo.Pools.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool == nil || pool.ArchivedAt != nil {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

func (s *poolService) ListPools(ctx context.Context, f ListFilter) ([]models.Pool, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	poolsPtr, total, err := s.repo.Pools.List(ctx, repository.PoolListFilter{
		ProductID: f.ProductID,
		Status:    f.Status,
		Limit:     f.Limit,
		Offset:    f.Offset,
	})
	if err != nil {
		return nil, 0, err
	}

	pools := make([]models.Pool, len(poolsPtr))
	for i, p := range poolsPtr {
		pools[i] = *p
	}
	return pools, total, nil
}

func (s *poolService) GetPledge(ctx context.Context, id, buyerID uuid.UUID) (*models.Pledge, error) {
	pledge, err := s.repo.Pledges.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pledge == nil {
		return nil, ErrPledgeNotFound
	}
	if pledge.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	return pledge, nil
}

func (s *poolService) ListBuyerPledges(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.Pledge, int64, error) {
	return s.repo.Pledges.ListByBuyer(ctx, buyerID, limit, offset)
}
