package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/monitoring"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

const checkTimeout = 3 * time.Second

type DependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type DependenciesResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
}

type handler struct {
	db            *gorm.DB
	lnRpc         lnrpc.ILnRpc
	btcRpc        btcrpc.IBtcRpc
	statusManager *monitoring.JobStatusManager
	logger        *logger.Logger
}

func New(db *gorm.DB, ln lnrpc.ILnRpc, btc btcrpc.IBtcRpc, statusManager *monitoring.JobStatusManager, logger *logger.Logger) IHandler {
	return &handler{
		db:            db,
		lnRpc:         ln,
		btcRpc:        btc,
		statusManager: statusManager,
		logger:        logger,
	}
}

// Healthz godoc
// @Summary Liveness check
// @id healthz
// @Tags Health
// @Produce json
// @Success 200 {object} view.MessageResponse
// @Router /healthz [get]
func (h *handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "ok",
	})
}

// Dependencies godoc
// @Summary Dependency health
// @Description Checks the database and both node workers
// @id healthDependencies
// @Tags Health
// @Produce json
// @Success 200 {object} DependenciesResponse
// @Failure 503 {object} DependenciesResponse
// @Router /api/v1/health/dependencies [get]
func (h *handler) Dependencies(c *gin.Context) {
	resp := DependenciesResponse{
		Status:       "ok",
		Dependencies: map[string]DependencyStatus{},
	}

	resp.Dependencies["postgres"] = h.check(func(ctx context.Context) error {
		sqlDB, err := h.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	resp.Dependencies["lightning_worker"] = h.check(func(ctx context.Context) error {
		_, err := h.lnRpc.GetInfo(ctx)
		return err
	})
	resp.Dependencies["bitcoin_worker"] = h.check(func(ctx context.Context) error {
		_, err := h.btcRpc.GetBestHeight(ctx)
		return err
	})

	code := http.StatusOK
	for _, dep := range resp.Dependencies {
		if dep.Status != "ok" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}

// Jobs godoc
// @Summary Background job health
// @id healthJobs
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]monitoring.JobStatus
// @Router /api/v1/health/jobs [get]
func (h *handler) Jobs(c *gin.Context) {
	statuses := h.statusManager.GetAllStatuses()
	code := http.StatusOK
	if h.statusManager.Unhealthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, statuses)
}

func (h *handler) check(fn func(ctx context.Context) error) DependencyStatus {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	status := DependencyStatus{
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
	}
	return status
}
