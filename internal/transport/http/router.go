package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func Router(h *PoolHandler) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Buyer-ID", "X-Actor-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/pools", h.CreatePool)
		v1.GET("/pools", h.ListPools)
		v1.GET("/pools/:id", h.GetPool)
		v1.POST("/pools/:id/cancel", h.CancelPool)
		v1.POST("/pools/:id/archive", h.ArchivePool)
		v1.POST("/pools/:id/pledges", h.AddPledge)

		v1.GET("/pledges", h.ListMyPledges)
		v1.GET("/pledges/:id", h.GetPledge)
		v1.DELETE("/pledges/:id", h.CancelPledge)
	}

	// дергается внешним планировщиком
	r.POST("/internal/reconcile", h.ReconcileNow)

	return r
}
