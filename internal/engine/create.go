package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

// CreateOrderParams carries the priced order the purchase flow hands over.
// Pricing itself happens upstream.
type CreateOrderParams struct {
	ProductID          string
	LocalBalance       int64
	RemoteBalance      int64
	TotalAmount        int64
	ChannelExpiryWeeks int
	PrivateChannel     bool
}

// CreateOrder provisions the payment rails for a new order: a fresh on-chain
// receive address and a Lightning hold invoice for the same amount.
func (e *Engine) CreateOrder(ctx context.Context, params CreateOrderParams) (*model.Order, error) {
	if params.TotalAmount <= 0 {
		return nil, errors.New("order total must be positive")
	}
	if params.LocalBalance <= 0 {
		return nil, errors.New("local balance must be positive")
	}
	if params.RemoteBalance < 0 {
		return nil, errors.New("remote balance must not be negative")
	}
	if params.ChannelExpiryWeeks <= 0 {
		return nil, errors.New("channel expiry must be at least one week")
	}

	balance, err := e.lnRpc.GetOnChainBalance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check wallet balance")
	}
	capacity := params.LocalBalance + params.RemoteBalance
	if balance < capacity+e.cfg.Lightning.MinWalletBuffer {
		e.alert.Notify(alert.LevelNotice, "wallet", "low on-chain bitcoin balance")
		return nil, errors.New("service is not available at this time")
	}

	orderID := uuid.NewString()

	address, err := e.btcRpc.GetNewAddress(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get receive address")
	}
	invoice, err := e.lnRpc.CreateHodlInvoice(ctx, params.TotalAmount, fmt.Sprintf("channel order %s", orderID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create hold invoice")
	}

	now := timeNow()
	order := &model.Order{
		ID:                 orderID,
		State:              model.OrderStateCreated,
		ProductID:          params.ProductID,
		LocalBalance:       params.LocalBalance,
		RemoteBalance:      params.RemoteBalance,
		TotalAmount:        params.TotalAmount,
		ChannelExpiryWeeks: params.ChannelExpiryWeeks,
		OrderExpiryAt:      now.Add(e.cfg.Order.PaymentWindow),
		BtcAddress:         address,
		LnInvoice: model.LnInvoice{
			ID:        invoice.ID,
			Request:   invoice.Request,
			AmountSat: invoice.AmountSat,
		},
		PrivateChannel: params.PrivateChannel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return e.store.Order.Create(e.db, order)
}

// RefundOrder records an operator refund of a paid order that never reached
// a channel open.
func (e *Engine) RefundOrder(ctx context.Context, orderID, refundTx string) (*model.Order, error) {
	if refundTx == "" {
		return nil, errors.New("refund transaction id is required")
	}
	if !e.guards.Acquire(orderID) {
		return nil, errors.Errorf("order %s already has a manual action in flight", orderID)
	}
	defer e.guards.Release(orderID)

	return e.sm.Apply(orderID, statemachine.TransitionRefund, map[string]interface{}{
		"refund_tx":   refundTx,
		"refunded_at": timeNow(),
	})
}
