package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"pool-service/internal/migrate"
	"pool-service/internal/models"
	"pool-service/internal/repository"
	"pool-service/internal/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func setupRepos(t *testing.T) *repository.Repository {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigratePoolDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.New(db)
}

func createPool(t *testing.T, r *repository.Repository, target int32, deadline time.Time) *models.Pool {
	t.Helper()
	p := &models.Pool{
		ProductID:      uuid.New(),
		Title:          "Bulk coffee beans",
		TargetQty:      target,
		DeadlineAt:     deadline,
		Status:         models.PoolStatusOpen,
		UnitPriceCents: 1250,
		CurrencyCode:   "USD",
	}
	if err := r.Pools.Create(context.Background(), p); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return p
}

func createPledge(t *testing.T, r *repository.Repository, poolID uuid.UUID, qty int32) *models.Pledge {
	t.Helper()
	pl := &models.Pledge{
		PoolID:   poolID,
		BuyerID:  uuid.New(),
		Quantity: qty,
		Status:   models.PledgeStatusActive,
	}
	if err := r.Pledges.Create(context.Background(), pl); err != nil {
		t.Fatalf("create pledge: %v", err)
	}
	return pl
}

func TestAdjustPledged_ConcurrentIncrements(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 1000, time.Now().Add(time.Hour))

	// агрегат обязан сойтись без read-modify-write гонок
	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Pools.AdjustPledged(ctx, pool.ID, 3)
			if err != nil || !ok {
				t.Errorf("adjust: ok=%v err=%v", ok, err)
			}
		}()
	}
	wg.Wait()

	got, err := r.Pools.GetByID(ctx, pool.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PledgedQty != workers*3 {
		t.Fatalf("pledged_qty expected %d got %d", workers*3, got.PledgedQty)
	}
}

func TestAdjustPledged_Guards(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 100, time.Now().Add(time.Hour))

	t.Run("never below zero", func(t *testing.T) {
		ok, err := r.Pools.AdjustPledged(ctx, pool.ID, -1)
		if err != nil {
			t.Fatalf("adjust: %v", err)
		}
		if ok {
			t.Fatal("decrement below zero must be rejected")
		}
	})

	t.Run("rejected after lock", func(t *testing.T) {
		if _, err := r.Pools.TransitionStatus(ctx, pool.ID, models.PoolStatusOpen, models.PoolStatusLocked); err != nil {
			t.Fatalf("transition: %v", err)
		}
		ok, err := r.Pools.AdjustPledged(ctx, pool.ID, 1)
		if err != nil {
			t.Fatalf("adjust: %v", err)
		}
		if ok {
			t.Fatal("increment on a locked pool must be rejected")
		}
	})
}

func TestTransitionStatus_SingleWinner(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 100, time.Now().Add(-time.Minute))

	const callers = 10
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Pools.TransitionStatus(ctx, pool.ID, models.PoolStatusOpen, models.PoolStatusLocked)
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			if ok {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for range wins {
		total++
	}
	if total != 1 {
		t.Fatalf("exactly one transition must win, got %d", total)
	}

	got, err := r.Pools.GetByID(ctx, pool.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.PoolStatusLocked {
		t.Fatalf("status: %s", got.Status)
	}
}

func TestMarkMOQReached_SetOnce(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 10, time.Now().Add(time.Hour))

	// порог не достигнут — штамп не ставится
	ok, err := r.Pools.MarkMOQReached(ctx, pool.ID, time.Now())
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if ok {
		t.Fatal("stamp must not be set below the target")
	}

	if ok, err := r.Pools.AdjustPledged(ctx, pool.ID, 10); err != nil || !ok {
		t.Fatalf("adjust: ok=%v err=%v", ok, err)
	}

	first := time.Now()
	ok, err = r.Pools.MarkMOQReached(ctx, pool.ID, first)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !ok {
		t.Fatal("first stamp at the target must succeed")
	}

	ok, err = r.Pools.MarkMOQReached(ctx, pool.ID, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if ok {
		t.Fatal("stamp must be set exactly once")
	}

	got, err := r.Pools.GetByID(ctx, pool.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MOQReachedAt == nil {
		t.Fatal("moq_reached_at not persisted")
	}
}

func TestListDue_CoversStrandedStatuses(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	now := time.Now()

	overdueOpen := createPool(t, r, 10, now.Add(-time.Minute))
	strandedLocked := createPool(t, r, 10, now.Add(-time.Minute))
	strandedFulfilling := createPool(t, r, 10, now.Add(-time.Minute))
	future := createPool(t, r, 10, now.Add(time.Hour))
	done := createPool(t, r, 10, now.Add(-time.Minute))

	mustTransition(t, r, strandedLocked.ID, models.PoolStatusOpen, models.PoolStatusLocked)
	mustTransition(t, r, strandedFulfilling.ID, models.PoolStatusOpen, models.PoolStatusLocked)
	mustTransition(t, r, strandedFulfilling.ID, models.PoolStatusLocked, models.PoolStatusFulfilling)
	mustTransition(t, r, done.ID, models.PoolStatusOpen, models.PoolStatusLocked)
	mustTransition(t, r, done.ID, models.PoolStatusLocked, models.PoolStatusFulfilling)
	mustTransition(t, r, done.ID, models.PoolStatusFulfilling, models.PoolStatusFulfilled)

	due, err := r.Pools.ListDue(ctx, now, 0)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}

	ids := map[uuid.UUID]bool{}
	for _, p := range due {
		ids[p.ID] = true
	}
	if !ids[overdueOpen.ID] || !ids[strandedLocked.ID] || !ids[strandedFulfilling.ID] {
		t.Fatalf("due set incomplete: %v", ids)
	}
	if ids[future.ID] {
		t.Fatal("future pool must not be due")
	}
	if ids[done.ID] {
		t.Fatal("terminal pool must not be due")
	}
}

func mustTransition(t *testing.T, r *repository.Repository, id uuid.UUID, from, to models.PoolStatus) {
	t.Helper()
	ok, err := r.Pools.TransitionStatus(context.Background(), id, from, to)
	if err != nil || !ok {
		t.Fatalf("transition %s -> %s: ok=%v err=%v", from, to, ok, err)
	}
}

func TestPledgeLifecycle(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 100, time.Now().Add(time.Hour))
	pledge := createPledge(t, r, pool.ID, 4)

	payment := &models.Payment{
		PledgeID:       pledge.ID,
		AmountCents:    5000,
		CurrencyCode:   "USD",
		Status:         models.PaymentStatusAuthorized,
		IdempotencyKey: pledge.ID.String(),
		MethodRef:      "pm_1",
	}
	if err := r.Payments.Create(ctx, payment); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	got, err := r.Pledges.GetByID(ctx, pledge.ID)
	if err != nil {
		t.Fatalf("get pledge: %v", err)
	}
	if got.Payment == nil || got.Payment.ID != payment.ID {
		t.Fatal("payment not preloaded with pledge")
	}

	active, err := r.Pledges.ListActiveByPool(ctx, pool.ID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active pledges: %d", len(active))
	}

	ok, err := r.Pledges.MarkCancelled(ctx, pledge.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	ok, err = r.Pledges.MarkCancelled(ctx, pledge.ID, time.Now())
	if err != nil {
		t.Fatalf("cancel twice: %v", err)
	}
	if ok {
		t.Fatal("second cancel must be a no-op")
	}

	active, err = r.Pledges.ListActiveByPool(ctx, pool.ID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("cancelled pledge still listed: %d", len(active))
	}

	// платежи отменённых pledges выпадают из рабочего множества оркестратора
	payments, err := r.Payments.ListActiveByPool(ctx, pool.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 0 {
		t.Fatalf("payments of cancelled pledges listed: %d", len(payments))
	}
}

func TestPaymentAdvanceStatus_ForwardOnly(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 100, time.Now().Add(time.Hour))
	pledge := createPledge(t, r, pool.ID, 1)

	payment := &models.Payment{
		PledgeID:       pledge.ID,
		AmountCents:    1250,
		CurrencyCode:   "USD",
		Status:         models.PaymentStatusAuthorized,
		IdempotencyKey: pledge.ID.String(),
		MethodRef:      "pm_1",
	}
	if err := r.Payments.Create(ctx, payment); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	ok, err := r.Payments.AdvanceStatus(ctx, payment.ID, models.PaymentStatusAuthorized, models.PaymentStatusCapturePending)
	if err != nil || !ok {
		t.Fatalf("advance: ok=%v err=%v", ok, err)
	}
	// повтор того же перехода проигрывает
	ok, err = r.Payments.AdvanceStatus(ctx, payment.ID, models.PaymentStatusAuthorized, models.PaymentStatusCapturePending)
	if err != nil {
		t.Fatalf("advance twice: %v", err)
	}
	if ok {
		t.Fatal("stale transition must lose")
	}

	if err := r.Payments.RecordAttempt(ctx, payment.ID, time.Now()); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if err := r.Payments.SetProviderRef(ctx, payment.ID, "ch_abc"); err != nil {
		t.Fatalf("set ref: %v", err)
	}

	ok, err = r.Payments.AdvanceStatus(ctx, payment.ID, models.PaymentStatusCapturePending, models.PaymentStatusCaptured)
	if err != nil || !ok {
		t.Fatalf("advance to captured: ok=%v err=%v", ok, err)
	}

	got, err := r.Payments.GetByPledge(ctx, pledge.ID)
	if err != nil {
		t.Fatalf("get by pledge: %v", err)
	}
	if got.Status != models.PaymentStatusCaptured {
		t.Fatalf("status: %s", got.Status)
	}
	if got.AttemptCount != 1 || got.LastAttemptAt == nil {
		t.Fatalf("attempt bookkeeping: count=%d last=%v", got.AttemptCount, got.LastAttemptAt)
	}
	if got.ProviderRef == nil || *got.ProviderRef != "ch_abc" {
		t.Fatalf("provider ref: %v", got.ProviderRef)
	}
}

func TestHistoryAppend(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 100, time.Now().Add(time.Hour))

	notes := "target not met at deadline"
	entries := []models.PoolStatusHistory{
		{PoolID: pool.ID, FromStatus: models.PoolStatusOpen, ToStatus: models.PoolStatusLocked, Automated: true, TriggeredBy: "reconciler"},
		{PoolID: pool.ID, FromStatus: models.PoolStatusLocked, ToStatus: models.PoolStatusFulfilling, Automated: true, TriggeredBy: "reconciler"},
		{PoolID: pool.ID, FromStatus: models.PoolStatusFulfilling, ToStatus: models.PoolStatusFailed, Automated: true, TriggeredBy: "reconciler", Notes: &notes},
	}
	for i := range entries {
		if err := r.History.Append(ctx, &entries[i]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	list, err := r.History.ListByPool(ctx, pool.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("history entries: %d", len(list))
	}
	withNotes := 0
	for _, h := range list {
		if h.Notes != nil && *h.Notes == notes {
			withNotes++
		}
	}
	if withNotes != 1 {
		t.Fatalf("notes not persisted: %d entries with notes", withNotes)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	r := setupRepos(t)
	ctx := context.Background()
	pool := createPool(t, r, 100, time.Now().Add(time.Hour))

	wantErr := context.Canceled
	err := r.WithTx(ctx, func(tx *repository.Repository) error {
		if ok, err := tx.Pools.AdjustPledged(ctx, pool.ID, 5); err != nil || !ok {
			t.Fatalf("adjust in tx: ok=%v err=%v", ok, err)
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected tx error back, got %v", err)
	}

	got, err := r.Pools.GetByID(ctx, pool.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PledgedQty != 0 {
		t.Fatalf("rolled-back increment persisted: %d", got.PledgedQty)
	}
}
