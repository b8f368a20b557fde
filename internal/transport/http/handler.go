package http

import (
	"errors"
	"net/http"
	"time"

	"pool-service/internal/cache"
	"pool-service/internal/models"
	"pool-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Покупателя идентифицирует шлюз (аутентификация — его зона
// ответственности) и передаёт id в заголовке
const headerBuyerID = "X-Buyer-ID"

type PoolHandler struct {
	svc        service.PoolService
	reconciler *service.Reconciler
	cache      *cache.RedisClient // nil — кэш выключен
	log        *zap.Logger
}

func NewPoolHandler(svc service.PoolService, reconciler *service.Reconciler, c *cache.RedisClient, log *zap.Logger) *PoolHandler {
	return &PoolHandler{
		svc:        svc,
		reconciler: reconciler,
		cache:      c,
		log:        log,
	}
}

func buyerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader(headerBuyerID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + headerBuyerID})
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func (h *PoolHandler) writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPoolNotFound), errors.Is(err, service.ErrPledgeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrPoolClosed), errors.Is(err, service.ErrPoolExpired),
		errors.Is(err, service.ErrPoolLocked), errors.Is(err, service.ErrAlreadyCancelled),
		errors.Is(err, service.ErrPoolNotTerminal):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrQuantityInvalid), errors.Is(err, service.ErrTargetInvalid),
		errors.Is(err, service.ErrDeadlineInvalid), errors.Is(err, service.ErrPriceInvalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (h *PoolHandler) CreatePool(c *gin.Context) {
	var req CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pool, err := h.svc.CreatePool(c.Request.Context(), service.CreatePoolInput{
		ProductID:      req.ProductID,
		Title:          req.Title,
		TargetQty:      req.TargetQty,
		UnitPriceCents: req.UnitPriceCents,
		CurrencyCode:   req.CurrencyCode,
		DeadlineAt:     req.DeadlineAt,
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPoolResponse(pool))
}

func (h *PoolHandler) CancelPool(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req CancelPoolRequest
	_ = c.ShouldBindJSON(&req)

	actor := c.GetHeader("X-Actor-ID")
	if actor == "" {
		actor = "admin"
	}
	if err := h.svc.CancelPool(c.Request.Context(), id, actor, req.Reason); err != nil {
		h.writeErr(c, err)
		return
	}
	h.invalidate(c, id)
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) ArchivePool(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.ArchivePool(c.Request.Context(), id); err != nil {
		h.writeErr(c, err)
		return
	}
	h.invalidate(c, id)
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) GetPool(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if h.cache != nil {
		if s, err := h.cache.GetPoolSummary(c.Request.Context(), id); err == nil && s != nil {
			c.JSON(http.StatusOK, PoolResponse{
				ID:         s.ID,
				ProductID:  s.ProductID,
				Title:      s.Title,
				TargetQty:  s.TargetQty,
				PledgedQty: s.PledgedQty,
				DeadlineAt: s.DeadlineAt,
				Status:     s.Status,
			})
			return
		}
	}

	pool, err := h.svc.GetPool(c.Request.Context(), id)
	if err != nil {
		h.writeErr(c, err)
		return
	}

	if h.cache != nil {
		_ = h.cache.SetPoolSummary(c.Request.Context(), cache.PoolSummary{
			ID:         pool.ID,
			ProductID:  pool.ProductID,
			Title:      pool.Title,
			TargetQty:  pool.TargetQty,
			PledgedQty: pool.PledgedQty,
			DeadlineAt: pool.DeadlineAt,
			Status:     pool.Status,
			MOQReached: pool.MOQReachedAt != nil,
		})
	}
	c.JSON(http.StatusOK, toPoolResponse(pool))
}

func (h *PoolHandler) ListPools(c *gin.Context) {
	f := service.ListFilter{Limit: 20}
	if s := c.Query("status"); s != "" {
		st := models.PoolStatus(s)
		f.Status = &st
	}
	if s := c.Query("product_id"); s != "" {
		pid, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
			return
		}
		f.ProductID = &pid
	}

	pools, total, err := h.svc.ListPools(c.Request.Context(), f)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	items := make([]PoolResponse, 0, len(pools))
	for i := range pools {
		items = append(items, toPoolResponse(&pools[i]))
	}
	c.JSON(http.StatusOK, ListResponse[PoolResponse]{Items: items, Total: total})
}

func (h *PoolHandler) AddPledge(c *gin.Context) {
	poolID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	buyer, ok := buyerID(c)
	if !ok {
		return
	}

	var req AddPledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pledge, err := h.svc.AddPledge(c.Request.Context(), service.AddPledgeInput{
		PoolID:    poolID,
		BuyerID:   buyer,
		Quantity:  req.Quantity,
		MethodRef: req.MethodRef,
	})
	if err != nil {
		h.writeErr(c, err)
		return
	}
	h.invalidate(c, poolID)
	c.JSON(http.StatusCreated, toPledgeResponse(pledge))
}

func (h *PoolHandler) CancelPledge(c *gin.Context) {
	pledgeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	buyer, ok := buyerID(c)
	if !ok {
		return
	}

	pledge, err := h.svc.GetPledge(c.Request.Context(), pledgeID, buyer)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if err := h.svc.CancelPledge(c.Request.Context(), pledgeID, buyer); err != nil {
		h.writeErr(c, err)
		return
	}
	h.invalidate(c, pledge.PoolID)
	c.Status(http.StatusNoContent)
}

func (h *PoolHandler) GetPledge(c *gin.Context) {
	pledgeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	buyer, ok := buyerID(c)
	if !ok {
		return
	}

	pledge, err := h.svc.GetPledge(c.Request.Context(), pledgeID, buyer)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toPledgeResponse(pledge))
}

func (h *PoolHandler) ListMyPledges(c *gin.Context) {
	buyer, ok := buyerID(c)
	if !ok {
		return
	}

	pledges, total, err := h.svc.ListBuyerPledges(c.Request.Context(), buyer, 20, 0)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	items := make([]PledgeResponse, 0, len(pledges))
	for i := range pledges {
		items = append(items, toPledgeResponse(&pledges[i]))
	}
	c.JSON(http.StatusOK, ListResponse[PledgeResponse]{Items: items, Total: total})
}

// ReconcileNow — триггер для внешнего cron; его аутентификация —
// забота вызывающей стороны (shared secret на периметре)
func (h *PoolHandler) ReconcileNow(c *gin.Context) {
	results, err := h.reconciler.ReconcileDue(c.Request.Context(), time.Now())
	if err != nil {
		h.log.Error("reconcile trigger failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "reconcile failed"})
		return
	}
	for _, r := range results {
		h.invalidate(c, r.PoolID)
	}
	c.JSON(http.StatusOK, gin.H{"reconciled": len(results)})
}

func (h *PoolHandler) invalidate(c *gin.Context, poolID uuid.UUID) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidatePool(c.Request.Context(), poolID); err != nil {
		h.log.Warn("cache invalidation failed", zap.String("pool_id", poolID.String()), zap.Error(err))
	}
}
