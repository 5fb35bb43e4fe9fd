package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/auth"
	"github.com/blocktank/channel-backend/internal/engine"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/store"
	"github.com/blocktank/channel-backend/internal/store/order"
	"github.com/blocktank/channel-backend/internal/utils/logger"
	"github.com/blocktank/channel-backend/internal/view"
)

type ConfirmRequest struct {
	TxID string `json:"txid" binding:"required"`
}

type RefundRequest struct {
	RefundTx string `json:"refund_tx" binding:"required"`
}

type handler struct {
	engine engine.IEngine
	store  *store.Store
	db     *gorm.DB
	auth   *auth.Service
	logger *logger.Logger
}

func New(eng engine.IEngine, s *store.Store, db *gorm.DB, authSvc *auth.Service, logger *logger.Logger) IHandler {
	return &handler{
		engine: eng,
		store:  s,
		db:     db,
		auth:   authSvc,
		logger: logger,
	}
}

// Login godoc
// @Summary Admin login
// @Description Exchanges admin credentials for a session token
// @id adminLogin
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body auth.Credentials true "Admin credentials"
// @Success 200 {object} auth.TokenResponse
// @Failure 401 {object} view.ErrorResponse
// @Router /admin/login [post]
func (h *handler) Login(c *gin.Context) {
	var creds auth.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}

	token, err := h.auth.GenerateToken(creds)
	if err != nil {
		c.JSON(http.StatusUnauthorized, view.CreateResponse[any](nil, err, nil, "login failed"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(token, nil, nil, ""))
}

// ListOrders godoc
// @Summary List orders
// @Description Paged order query, newest first
// @id adminListOrders
// @Tags Admin
// @Produce json
// @Param state query int false "Filter by state code"
// @Param node_key query string false "Filter by remote node public key"
// @Param expired query bool false "Only open orders past their channel expiry"
// @Param limit query int false "Page size, max 100"
// @Param offset query int false "Page offset"
// @Success 200 {array} model.Order
// @Failure 500 {object} view.ErrorResponse
// @Router /admin/orders [get]
func (h *handler) ListOrders(c *gin.Context) {
	filter := order.ListFilter{
		OrderID:       c.Query("order_id"),
		RemoteNodeKey: c.Query("node_key"),
	}
	if stateStr := c.Query("state"); stateStr != "" {
		code, err := strconv.Atoi(stateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid state"))
			return
		}
		state := model.OrderState(code)
		filter.State = &state
	}
	filter.ExpiredChannels = c.Query("expired") == "true"
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	orders, err := h.store.Order.List(h.db, filter)
	if err != nil {
		h.logger.Error("[ListOrders][List]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "failed to list orders"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(orders, nil, nil, ""))
}

// GetOrder godoc
// @Summary Get order (full)
// @Description Returns the complete order document including attempt history
// @id adminGetOrder
// @Tags Admin
// @Produce json
// @Param id path string true "Order id"
// @Success 200 {object} model.Order
// @Failure 404 {object} view.ErrorResponse
// @Router /admin/orders/{id} [get]
func (h *handler) GetOrder(c *gin.Context) {
	ord, err := h.store.Order.GetByID(h.db, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, view.CreateResponse[any](nil, err, nil, "order not found"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(ord, nil, nil, ""))
}

// ManualConfirm godoc
// @Summary Force-confirm a payment
// @Description Credits one transaction to an order, bypassing the confirmation height rule
// @id adminManualConfirm
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Order id"
// @Param request body ConfirmRequest true "Transaction id"
// @Success 200 {object} model.Order
// @Failure 400 {object} view.ErrorResponse
// @Router /admin/orders/{id}/confirm [post]
func (h *handler) ManualConfirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}

	ord, err := h.engine.ManualConfirm(c.Request.Context(), c.Param("id"), req.TxID)
	if err != nil {
		h.logger.Error("[ManualConfirm][ManualConfirm]", map[string]string{
			"orderId": c.Param("id"),
			"txid":    req.TxID,
			"error":   err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "failed to confirm payment"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(ord, nil, nil, ""))
}

// Refund godoc
// @Summary Refund a paid order
// @Description Records the refund transaction and moves the order to REFUNDED
// @id adminRefund
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Order id"
// @Param request body RefundRequest true "Refund transaction id"
// @Success 200 {object} model.Order
// @Failure 400 {object} view.ErrorResponse
// @Router /admin/orders/{id}/refund [post]
func (h *handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid request"))
		return
	}

	ord, err := h.engine.RefundOrder(c.Request.Context(), c.Param("id"), req.RefundTx)
	if err != nil {
		h.logger.Error("[Refund][RefundOrder]", map[string]string{
			"orderId": c.Param("id"),
			"error":   err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "failed to refund order"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(ord, nil, nil, ""))
}

// CloseExpired godoc
// @Summary Close expired channels
// @Description Schedules closure of expired-but-open channels after a grace delay. Calling again inside the delay cancels the pending batch.
// @id adminCloseExpired
// @Tags Admin
// @Produce json
// @Success 200 {object} engine.CloseSchedule
// @Failure 500 {object} view.ErrorResponse
// @Router /admin/channels/close-expired [post]
func (h *handler) CloseExpired(c *gin.Context) {
	schedule, err := h.engine.CloseExpiredChannels(c.Request.Context())
	if err != nil {
		h.logger.Error("[CloseExpired][CloseExpiredChannels]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "failed to schedule close"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(schedule, nil, nil, ""))
}

// PendingOpens godoc
// @Summary List pending channel opens
// @Description Orders claimed but not yet opening
// @id adminPendingOpens
// @Tags Admin
// @Produce json
// @Success 200 {array} model.Order
// @Failure 500 {object} view.ErrorResponse
// @Router /admin/channels/pending [get]
func (h *handler) PendingOpens(c *gin.Context) {
	state := model.OrderStateURISet
	orders, err := h.store.Order.List(h.db, order.ListFilter{State: &state})
	if err != nil {
		h.logger.Error("[PendingOpens][List]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "failed to list pending opens"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(orders, nil, nil, ""))
}
