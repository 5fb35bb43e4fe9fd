package http

import (
	"github.com/gin-gonic/gin"

	"github.com/blocktank/channel-backend/internal/auth"
	"github.com/blocktank/channel-backend/internal/handler"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler, authSvc *auth.Service) {
	v1 := r.Group("/api/v1")

	orders := v1.Group("/orders")
	{
		orders.POST("", h.OrderHandler.CreateOrder)
		orders.GET("/zero-conf-quote", h.OrderHandler.ZeroConfQuote)
		orders.GET("/:id", h.OrderHandler.GetOrder)
		orders.POST("/:id/claim", h.OrderHandler.ClaimChannel)
		orders.POST("/:id/renew", h.OrderHandler.RequestRenewal)
	}

	admin := v1.Group("/admin")
	{
		admin.POST("/login", h.AdminHandler.Login)

		authed := admin.Group("", authSvc.Middleware())
		{
			authed.GET("/orders", h.AdminHandler.ListOrders)
			authed.GET("/orders/:id", h.AdminHandler.GetOrder)
			authed.POST("/orders/:id/confirm", h.AdminHandler.ManualConfirm)
			authed.POST("/orders/:id/refund", h.AdminHandler.Refund)
			authed.POST("/channels/close-expired", h.AdminHandler.CloseExpired)
			authed.GET("/channels/pending", h.AdminHandler.PendingOpens)
		}
	}

	healthGroup := v1.Group("/health")
	{
		healthGroup.GET("/dependencies", h.HealthHandler.Dependencies)
		healthGroup.GET("/jobs", h.HealthHandler.Jobs)
	}

	// health check
	r.GET("/healthz", h.HealthHandler.Healthz)

	// prometheus scrape target
	r.GET("/metrics", h.MetricsHandler.Handler())
}
