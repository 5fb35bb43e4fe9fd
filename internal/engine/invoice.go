package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

// WatchInvoices consumes the Lightning worker's invoice event feed until ctx
// is done, resubscribing when the feed drops.
func (e *Engine) WatchInvoices(ctx context.Context) {
	for {
		events, err := e.lnRpc.SubscribeInvoiceEvents(ctx)
		if err != nil {
			e.logger.Error("[InvoiceSettlement] failed to subscribe to invoice events", map[string]string{
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		for event := range events {
			if err := e.handleInvoiceEvent(ctx, event); err != nil {
				e.logger.Error("[InvoiceSettlement] failed to handle invoice event", map[string]string{
					"invoiceId": event.InvoiceID,
					"newState":  event.NewState,
					"error":     err.Error(),
				})
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (e *Engine) handleInvoiceEvent(ctx context.Context, event lnrpc.InvoiceEvent) error {
	if event.NewState != lnrpc.InvoiceStateHolding {
		return nil
	}

	order, err := e.store.Order.GetByInvoiceID(e.db, event.InvoiceID)
	if err == nil {
		return e.settleOrderInvoice(ctx, order, event)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(err, "failed to find order for invoice")
	}

	order, err = e.store.Order.GetByRenewalInvoiceID(e.db, event.InvoiceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Not ours, another service's invoice on the same node.
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to find order for renewal invoice")
	}
	return e.settleRenewalInvoice(ctx, order, event)
}

// settleOrderInvoice reveals the preimage for a held order invoice and pays
// the order. Fails closed: if the settle cannot go through the invoice is
// cancelled so the customer's funds are not held hostage.
func (e *Engine) settleOrderInvoice(ctx context.Context, order *model.Order, event lnrpc.InvoiceEvent) error {
	if order.State != model.OrderStateCreated {
		e.logger.Warn("[InvoiceSettlement] held invoice for non-payable order, cancelling", map[string]string{
			"orderId": order.ID,
			"state":   order.State.String(),
		})
		return e.cancelInvoice(ctx, event.InvoiceID, order.ID)
	}

	// The event may be stale by the time it is processed, settle only
	// against the invoice's current state.
	invoice, err := e.lnRpc.GetInvoice(ctx, event.InvoiceID)
	if err != nil {
		return errors.Wrap(err, "failed to look up held invoice")
	}
	if !invoice.IsHeld {
		return nil
	}

	if err := e.lnRpc.SettleHodlInvoice(ctx, event.InvoiceID); err != nil {
		e.alert.Notify(alert.LevelError, "invoice",
			fmt.Sprintf("order %s: failed to settle held invoice %s: %v", order.ID, event.InvoiceID, err))
		if cancelErr := e.cancelInvoice(ctx, event.InvoiceID, order.ID); cancelErr != nil {
			return cancelErr
		}
		return errors.Wrap(err, "failed to settle invoice")
	}

	// The conditional transition is the second state check: if another event
	// raced us here the re-apply is a no-op.
	_, err = e.sm.Apply(order.ID, statemachine.TransitionPay, map[string]interface{}{
		"amount_received": order.LnInvoice.AmountSat,
	})
	return err
}

// settleRenewalInvoice extends an open channel's lease. Same settle/cancel
// mechanics as an order invoice, but the order state does not change.
func (e *Engine) settleRenewalInvoice(ctx context.Context, order *model.Order, event lnrpc.InvoiceEvent) error {
	if order.RenewalQuote == nil || order.State.IsTerminal() {
		return e.cancelInvoice(ctx, event.InvoiceID, order.ID)
	}

	if err := e.lnRpc.SettleHodlInvoice(ctx, event.InvoiceID); err != nil {
		e.alert.Notify(alert.LevelError, "invoice",
			fmt.Sprintf("order %s: failed to settle renewal invoice %s: %v", order.ID, event.InvoiceID, err))
		if cancelErr := e.cancelInvoice(ctx, event.InvoiceID, order.ID); cancelErr != nil {
			return cancelErr
		}
		return errors.Wrap(err, "failed to settle renewal invoice")
	}

	renewal := *order.RenewalQuote
	renewal.PreviousChannelExpiry = order.ChannelExpiryAt
	renewal.SettledAt = timeNow()

	order.Renewals = append(order.Renewals, renewal)
	expiry := renewal.ChannelExpiry

	e.logger.Info(fmt.Sprintf("[InvoiceSettlement] order %s renewed until %s", order.ID, expiry.Format(time.RFC3339)))
	return e.store.Order.UpdateFields(e.db, order.ID, map[string]interface{}{
		"renewals":          order.Renewals,
		"renewal_quote":     nil,
		"channel_expiry_at": expiry,
	})
}

func (e *Engine) cancelInvoice(ctx context.Context, invoiceID, orderID string) error {
	if err := e.lnRpc.CancelHodlInvoice(ctx, invoiceID); err != nil {
		e.alert.Notify(alert.LevelError, "invoice",
			fmt.Sprintf("order %s: failed to cancel held invoice %s: %v", orderID, invoiceID, err))
		return errors.Wrap(err, "failed to cancel invoice")
	}
	return nil
}

// RequestRenewal issues a hold invoice extending the order's channel lease by
// the given number of weeks. The amount is computed by the caller (pricing is
// out of scope here).
func (e *Engine) RequestRenewal(ctx context.Context, orderID string, weeks int, amountSat int64) (*model.Order, error) {
	if !e.guards.Acquire(orderID) {
		return nil, errors.Errorf("order %s already has a manual action in flight", orderID)
	}
	defer e.guards.Release(orderID)

	order, err := e.store.Order.GetByID(e.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != model.OrderStateOpen {
		return nil, errors.Errorf("order %s has no open channel to renew (state %s)", orderID, order.State)
	}
	if order.RenewalQuote != nil {
		return nil, errors.Errorf("order %s already has an outstanding renewal invoice", orderID)
	}
	if order.ChannelExpiryAt == nil {
		return nil, errors.Errorf("order %s has no channel expiry on record", orderID)
	}

	invoice, err := e.lnRpc.CreateHodlInvoice(ctx, amountSat, fmt.Sprintf("channel renewal %s", orderID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create renewal invoice")
	}

	quote := &model.Renewal{
		LnInvoice: model.LnInvoice{
			ID:        invoice.ID,
			Request:   invoice.Request,
			AmountSat: invoice.AmountSat,
		},
		ChannelExpiry: order.ChannelExpiryAt.Add(time.Duration(weeks) * 7 * 24 * time.Hour),
	}
	if err := e.store.Order.UpdateFields(e.db, order.ID, map[string]interface{}{
		"renewal_quote": quote,
	}); err != nil {
		return nil, err
	}
	return e.store.Order.GetByID(e.db, order.ID)
}
