package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

// CloseSchedule reports what a close-expired trigger did: either armed a
// pending batch or cancelled the one already pending.
type CloseSchedule struct {
	Scheduled bool          `json:"scheduled"`
	Cancelled bool          `json:"cancelled"`
	OrderIDs  []string      `json:"order_ids,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
}

// CloseResult is the per-order outcome of an executed close batch.
type CloseResult struct {
	OrderID string `json:"order_id"`
	CloseTx string `json:"close_tx,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CloseExpiredChannels is the two-phase admin close trigger. The first call
// selects expired-but-live channels and arms their closure after the grace
// delay; a second call inside the window cancels the pending batch instead.
func (e *Engine) CloseExpiredChannels(ctx context.Context) (*CloseSchedule, error) {
	if e.timers.Stop(chanCloseTimerKey) {
		e.logger.Info("[AdminCloser] pending close batch cancelled")
		return &CloseSchedule{Cancelled: true}, nil
	}

	orders, err := e.store.Order.ListExpiredOpen(e.db, timeNow())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list expired open orders")
	}

	channels, err := e.lnRpc.ListChannels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list channels")
	}
	liveIDs := make(map[string]bool, len(channels))
	for _, ch := range channels {
		liveIDs[ch.ID] = true
	}

	var orderIDs []string
	for _, order := range orders {
		if order.LightningChannelID != "" && liveIDs[order.LightningChannelID] {
			orderIDs = append(orderIDs, order.ID)
		}
	}
	if len(orderIDs) == 0 {
		return &CloseSchedule{}, nil
	}

	delay := e.cfg.Order.CloseGraceDelay
	if !e.timers.Schedule(chanCloseTimerKey, delay, func() {
		e.runCloseBatch(context.Background(), orderIDs)
	}) {
		// Lost a race with a concurrent trigger that armed first.
		return &CloseSchedule{}, nil
	}

	e.logger.Info("[AdminCloser] close batch scheduled", map[string]string{
		"orders": fmt.Sprintf("%d", len(orderIDs)),
		"delay":  delay.String(),
	})
	return &CloseSchedule{
		Scheduled: true,
		OrderIDs:  orderIDs,
		Delay:     delay,
	}, nil
}

// runCloseBatch closes the selected channels sequentially. A failing order is
// recorded and skipped, never aborting the rest of the batch.
func (e *Engine) runCloseBatch(ctx context.Context, orderIDs []string) []CloseResult {
	results := make([]CloseResult, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		results = append(results, e.closeOrderChannel(ctx, orderID))
	}

	var failed []string
	for _, r := range results {
		if r.Error != "" {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.OrderID, r.Error))
		}
	}
	if len(failed) > 0 {
		e.alert.Notify(alert.LevelError, "closer",
			fmt.Sprintf("close batch finished with %d/%d failures: %s", len(failed), len(results), strings.Join(failed, "; ")))
	} else {
		e.alert.Notify(alert.LevelInfo, "closer",
			fmt.Sprintf("close batch finished, %d channels closing", len(results)))
	}
	return results
}

func (e *Engine) closeOrderChannel(ctx context.Context, orderID string) CloseResult {
	result := CloseResult{OrderID: orderID}

	if !e.guards.Acquire(orderID) {
		result.Error = "another action is in flight for this order"
		return result
	}
	defer e.guards.Release(orderID)

	order, err := e.store.Order.GetByID(e.db, orderID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if order.State != model.OrderStateOpen {
		result.Error = fmt.Sprintf("order no longer open (state %s)", order.State)
		return result
	}

	closeRes, err := e.lnRpc.CloseChannel(ctx, order.LightningChannelID)
	if err != nil {
		e.logger.Error("[AdminCloser] failed to close channel", map[string]string{
			"orderId":   orderID,
			"channelId": order.LightningChannelID,
			"error":     err.Error(),
		})
		result.Error = err.Error()
		return result
	}

	if _, err := e.sm.Apply(orderID, statemachine.TransitionStartClose, map[string]interface{}{
		"channel_close_tx": &model.ChannelTx{
			TransactionID: closeRes.TransactionID,
			Ts:            timeNow(),
		},
	}); err != nil {
		result.Error = err.Error()
		return result
	}
	result.CloseTx = closeRes.TransactionID
	return result
}
