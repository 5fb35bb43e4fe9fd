package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/auth"
	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/engine"
	"github.com/blocktank/channel-backend/internal/handler/admin"
	"github.com/blocktank/channel-backend/internal/handler/health"
	"github.com/blocktank/channel-backend/internal/handler/metrics"
	"github.com/blocktank/channel-backend/internal/handler/order"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/monitoring"
	"github.com/blocktank/channel-backend/internal/store"
	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

type Handler struct {
	OrderHandler   order.IHandler
	AdminHandler   admin.IHandler
	HealthHandler  health.IHandler
	MetricsHandler *metrics.MetricsHandler
}

func New(appConfig *config.AppConfig, logger *logger.Logger,
	eng engine.IEngine,
	s *store.Store,
	db *gorm.DB,
	lnRpc lnrpc.ILnRpc,
	btcRpc btcrpc.IBtcRpc,
	authSvc *auth.Service,
	statusManager *monitoring.JobStatusManager,
	metricsRegistry *prometheus.Registry) *Handler {
	return &Handler{
		OrderHandler:   order.New(eng, s, db, logger, appConfig),
		AdminHandler:   admin.New(eng, s, db, authSvc, logger),
		HealthHandler:  health.New(db, lnRpc, btcRpc, statusManager, logger),
		MetricsHandler: metrics.NewMetricsHandler(metricsRegistry),
	}
}
