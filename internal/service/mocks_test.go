package service_test

import (
	"context"
	"sync"
	"time"

	"pool-service/internal/models"
	"pool-service/internal/repository"
	"pool-service/internal/service"

	"github.com/google/uuid"
)

// Моки в стиле func-полей: реализуют интерфейсы репозиториев,
// поведение задаётся в самом тесте

type MockPoolRepo struct {
	CreateFunc                   func(ctx context.Context, p *models.Pool) error
	GetByIDFunc                  func(ctx context.Context, id uuid.UUID) (*models.Pool, error)
	ListFunc                     func(ctx context.Context, f repository.PoolListFilter) ([]*models.Pool, int64, error)
	ListDueFunc                  func(ctx context.Context, now time.Time, limit int) ([]*models.Pool, error)
	AdjustPledgedFunc            func(ctx context.Context, id uuid.UUID, delta int32) (bool, error)
	TransitionStatusFunc         func(ctx context.Context, id uuid.UUID, from, to models.PoolStatus) (bool, error)
	MarkMOQReachedFunc           func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	IncrementFulfillAttemptsFunc func(ctx context.Context, id uuid.UUID) (int32, error)
	ArchiveFunc                  func(ctx context.Context, id uuid.UUID, at time.Time) error
}

func (m *MockPoolRepo) Create(ctx context.Context, p *models.Pool) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return nil
}

func (m *MockPoolRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockPoolRepo) List(ctx context.Context, f repository.PoolListFilter) ([]*models.Pool, int64, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return nil, 0, nil
}

func (m *MockPoolRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Pool, error) {
	if m.ListDueFunc != nil {
		return m.ListDueFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *MockPoolRepo) AdjustPledged(ctx context.Context, id uuid.UUID, delta int32) (bool, error) {
	if m.AdjustPledgedFunc != nil {
		return m.AdjustPledgedFunc(ctx, id, delta)
	}
	return true, nil
}

func (m *MockPoolRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.PoolStatus) (bool, error) {
	if m.TransitionStatusFunc != nil {
		return m.TransitionStatusFunc(ctx, id, from, to)
	}
	return true, nil
}

func (m *MockPoolRepo) MarkMOQReached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if m.MarkMOQReachedFunc != nil {
		return m.MarkMOQReachedFunc(ctx, id, at)
	}
	return false, nil
}

func (m *MockPoolRepo) IncrementFulfillAttempts(ctx context.Context, id uuid.UUID) (int32, error) {
	if m.IncrementFulfillAttemptsFunc != nil {
		return m.IncrementFulfillAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockPoolRepo) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.ArchiveFunc != nil {
		return m.ArchiveFunc(ctx, id, at)
	}
	return nil
}

type MockPledgeRepo struct {
	CreateFunc           func(ctx context.Context, p *models.Pledge) error
	GetByIDFunc          func(ctx context.Context, id uuid.UUID) (*models.Pledge, error)
	ListActiveByPoolFunc func(ctx context.Context, poolID uuid.UUID) ([]models.Pledge, error)
	ListByBuyerFunc      func(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.Pledge, int64, error)
	MarkCancelledFunc    func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

func (m *MockPledgeRepo) Create(ctx context.Context, p *models.Pledge) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (m *MockPledgeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Pledge, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockPledgeRepo) ListActiveByPool(ctx context.Context, poolID uuid.UUID) ([]models.Pledge, error) {
	if m.ListActiveByPoolFunc != nil {
		return m.ListActiveByPoolFunc(ctx, poolID)
	}
	return nil, nil
}

func (m *MockPledgeRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]models.Pledge, int64, error) {
	if m.ListByBuyerFunc != nil {
		return m.ListByBuyerFunc(ctx, buyerID, limit, offset)
	}
	return nil, 0, nil
}

func (m *MockPledgeRepo) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if m.MarkCancelledFunc != nil {
		return m.MarkCancelledFunc(ctx, id, at)
	}
	return true, nil
}

type MockPaymentRepo struct {
	CreateFunc           func(ctx context.Context, p *models.Payment) error
	GetByIDFunc          func(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByPledgeFunc      func(ctx context.Context, pledgeID uuid.UUID) (*models.Payment, error)
	ListActiveByPoolFunc func(ctx context.Context, poolID uuid.UUID) ([]models.Payment, error)
	AdvanceStatusFunc    func(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus) (bool, error)
	RecordAttemptFunc    func(ctx context.Context, id uuid.UUID, at time.Time) error
	SetProviderRefFunc   func(ctx context.Context, id uuid.UUID, ref string) error
	MarkFailedFunc       func(ctx context.Context, id uuid.UUID, from models.PaymentStatus, reason string) (bool, error)
}

func (m *MockPaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (m *MockPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockPaymentRepo) GetByPledge(ctx context.Context, pledgeID uuid.UUID) (*models.Payment, error) {
	if m.GetByPledgeFunc != nil {
		return m.GetByPledgeFunc(ctx, pledgeID)
	}
	return nil, nil
}

func (m *MockPaymentRepo) ListActiveByPool(ctx context.Context, poolID uuid.UUID) ([]models.Payment, error) {
	if m.ListActiveByPoolFunc != nil {
		return m.ListActiveByPoolFunc(ctx, poolID)
	}
	return nil, nil
}

func (m *MockPaymentRepo) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus) (bool, error) {
	if m.AdvanceStatusFunc != nil {
		return m.AdvanceStatusFunc(ctx, id, from, to)
	}
	return true, nil
}

func (m *MockPaymentRepo) RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, id, at)
	}
	return nil
}

func (m *MockPaymentRepo) SetProviderRef(ctx context.Context, id uuid.UUID, ref string) error {
	if m.SetProviderRefFunc != nil {
		return m.SetProviderRefFunc(ctx, id, ref)
	}
	return nil
}

func (m *MockPaymentRepo) MarkFailed(ctx context.Context, id uuid.UUID, from models.PaymentStatus, reason string) (bool, error) {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, from, reason)
	}
	return true, nil
}

type MockHistoryRepo struct {
	AppendFunc     func(ctx context.Context, h *models.PoolStatusHistory) error
	ListByPoolFunc func(ctx context.Context, poolID uuid.UUID) ([]models.PoolStatusHistory, error)
}

func (m *MockHistoryRepo) Append(ctx context.Context, h *models.PoolStatusHistory) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, h)
	}
	return nil
}

func (m *MockHistoryRepo) ListByPool(ctx context.Context, poolID uuid.UUID) ([]models.PoolStatusHistory, error) {
	if m.ListByPoolFunc != nil {
		return m.ListByPoolFunc(ctx, poolID)
	}
	return nil, nil
}

// RecordingBus собирает опубликованные события
type RecordingBus struct {
	mu        sync.Mutex
	Locked    []service.PoolLockedEvent
	MOQ       []service.MOQReachedEvent
	Captured  []service.PaymentCapturedEvent
	Refunded  []service.PaymentRefundedEvent
	Fulfilled []service.PoolFulfilledEvent
	Failed    []service.PoolFailedEvent
	Alerts    []service.PaymentAlertEvent
}

func (b *RecordingBus) PublishPoolLocked(ctx context.Context, e service.PoolLockedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Locked = append(b.Locked, e)
	return nil
}

func (b *RecordingBus) PublishMOQReached(ctx context.Context, e service.MOQReachedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.MOQ = append(b.MOQ, e)
	return nil
}

func (b *RecordingBus) PublishPaymentCaptured(ctx context.Context, e service.PaymentCapturedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Captured = append(b.Captured, e)
	return nil
}

func (b *RecordingBus) PublishPaymentRefunded(ctx context.Context, e service.PaymentRefundedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Refunded = append(b.Refunded, e)
	return nil
}

func (b *RecordingBus) PublishPoolFulfilled(ctx context.Context, e service.PoolFulfilledEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Fulfilled = append(b.Fulfilled, e)
	return nil
}

func (b *RecordingBus) PublishPoolFailed(ctx context.Context, e service.PoolFailedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Failed = append(b.Failed, e)
	return nil
}

func (b *RecordingBus) PublishPaymentAlert(ctx context.Context, e service.PaymentAlertEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Alerts = append(b.Alerts, e)
	return nil
}

func newRepo(pools *MockPoolRepo, pledges *MockPledgeRepo, payments *MockPaymentRepo, history *MockHistoryRepo) *repository.Repository {
	if pools == nil {
		pools = &MockPoolRepo{}
	}
	if pledges == nil {
		pledges = &MockPledgeRepo{}
	}
	if payments == nil {
		payments = &MockPaymentRepo{}
	}
	if history == nil {
		history = &MockHistoryRepo{}
	}
	return &repository.Repository{
		Pools:    pools,
		Pledges:  pledges,
		Payments: payments,
		History:  history,
	}
}
