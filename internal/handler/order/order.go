package order

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/engine"
	"github.com/blocktank/channel-backend/internal/store"
	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
	"github.com/blocktank/channel-backend/internal/view"
)

type CreateOrderRequest struct {
	ProductID          string `json:"product_id" binding:"required"`
	LocalBalance       int64  `json:"local_balance" binding:"required"`
	RemoteBalance      int64  `json:"remote_balance"`
	TotalAmount        int64  `json:"total_amount" binding:"required"`
	ChannelExpiryWeeks int    `json:"channel_expiry_weeks" binding:"required"`
	PrivateChannel     bool   `json:"private_channel"`
}

type ClaimRequest struct {
	NodeURI string `json:"node_uri" binding:"required"`
	Src     string `json:"src"`
	Private bool   `json:"private"`
}

type RenewalRequest struct {
	Weeks     int   `json:"weeks" binding:"required"`
	AmountSat int64 `json:"amount_sat" binding:"required"`
}

type handler struct {
	engine    engine.IEngine
	store     *store.Store
	db        *gorm.DB
	logger    *logger.Logger
	appConfig *config.AppConfig
}

func New(eng engine.IEngine, s *store.Store, db *gorm.DB, logger *logger.Logger, appConfig *config.AppConfig) IHandler {
	return &handler{
		engine:    eng,
		store:     s,
		db:        db,
		logger:    logger,
		appConfig: appConfig,
	}
}

// CreateOrder godoc
// @Summary Create channel order
// @Description Creates a priced channel order with on-chain and Lightning payment rails
// @id createOrder
// @Tags Order
// @Accept json
// @Produce json
// @Param request body CreateOrderRequest true "Order parameters"
// @Success 200 {object} OrderView
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /orders [post]
func (h *handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[CreateOrder][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}

	order, err := h.engine.CreateOrder(c.Request.Context(), engine.CreateOrderParams{
		ProductID:          req.ProductID,
		LocalBalance:       req.LocalBalance,
		RemoteBalance:      req.RemoteBalance,
		TotalAmount:        req.TotalAmount,
		ChannelExpiryWeeks: req.ChannelExpiryWeeks,
		PrivateChannel:     req.PrivateChannel,
	})
	if err != nil {
		h.logger.Error("[CreateOrder][CreateOrder]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "failed to create order"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(toOrderView(order), nil, nil, ""))
}

// GetOrder godoc
// @Summary Get order
// @Description Returns the customer view of an order
// @id getOrder
// @Tags Order
// @Produce json
// @Param id path string true "Order id"
// @Success 200 {object} OrderView
// @Failure 404 {object} view.ErrorResponse
// @Router /orders/{id} [get]
func (h *handler) GetOrder(c *gin.Context) {
	order, err := h.store.Order.GetByID(h.db, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, view.CreateResponse[any](nil, err, nil, "order not found"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(toOrderView(order), nil, nil, ""))
}

// ClaimChannel godoc
// @Summary Claim channel
// @Description Finalises a paid order with the customer's node URI
// @id claimChannel
// @Tags Order
// @Accept json
// @Produce json
// @Param id path string true "Order id"
// @Param request body ClaimRequest true "Claim parameters"
// @Success 200 {object} OrderView
// @Failure 400 {object} view.ErrorResponse
// @Router /orders/{id}/claim [post]
func (h *handler) ClaimChannel(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[ClaimChannel][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}

	order, err := h.engine.ClaimChannel(c.Request.Context(), c.Param("id"), req.NodeURI, req.Src, req.Private)
	if err != nil {
		h.logger.Error("[ClaimChannel][ClaimChannel]", map[string]string{
			"orderId": c.Param("id"),
			"error":   err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "failed to claim channel"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(toOrderView(order), nil, nil, ""))
}

// RequestRenewal godoc
// @Summary Request channel renewal
// @Description Issues a hold invoice extending the channel lease
// @id requestRenewal
// @Tags Order
// @Accept json
// @Produce json
// @Param id path string true "Order id"
// @Param request body RenewalRequest true "Renewal parameters"
// @Success 200 {object} OrderView
// @Failure 400 {object} view.ErrorResponse
// @Router /orders/{id}/renew [post]
func (h *handler) RequestRenewal(c *gin.Context) {
	var req RenewalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[RequestRenewal][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return
	}

	order, err := h.engine.RequestRenewal(c.Request.Context(), c.Param("id"), req.Weeks, req.AmountSat)
	if err != nil {
		h.logger.Error("[RequestRenewal][RequestRenewal]", map[string]string{
			"orderId": c.Param("id"),
			"error":   err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "failed to request renewal"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(toOrderView(order), nil, nil, ""))
}

// ZeroConfQuote godoc
// @Summary Zero-conf quote
// @Description Reports whether an amount qualifies for zero-conf acceptance and at what fee rate
// @id zeroConfQuote
// @Tags Order
// @Produce json
// @Param amount query int true "Amount in satoshi"
// @Success 200 {object} engine.ZeroConfQuote
// @Failure 400 {object} view.ErrorResponse
// @Router /orders/zero-conf-quote [get]
func (h *handler) ZeroConfQuote(c *gin.Context) {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid amount"))
		return
	}

	quote, err := h.engine.CheckZeroConfAmount(c.Request.Context(), amount)
	if err != nil {
		h.logger.Error("[ZeroConfQuote][CheckZeroConfAmount]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "failed to quote zero-conf"))
		return
	}
	c.JSON(http.StatusOK, view.CreateResponse(quote, nil, nil, ""))
}
