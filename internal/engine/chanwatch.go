package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

const watchBatchSize = 500

// WatchChannels reconciles orders in OPENING, OPEN and CLOSING against the
// node's live and closed channel lists, matching by funding transaction id.
func (e *Engine) WatchChannels(ctx context.Context) error {
	orders, err := e.store.Order.ListWatchable(e.db, watchBatchSize)
	if err != nil {
		return errors.Wrap(err, "failed to list watchable orders")
	}
	if len(orders) == 0 {
		return nil
	}

	channels, err := e.lnRpc.ListChannels(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list channels")
	}
	closed, err := e.lnRpc.ListClosedChannels(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list closed channels")
	}

	liveByTx := make(map[string]lnrpc.Channel, len(channels))
	for _, ch := range channels {
		liveByTx[ch.TransactionID] = ch
	}
	closedByTx := make(map[string]lnrpc.ClosedChannel, len(closed))
	for _, ch := range closed {
		closedByTx[ch.TransactionID] = ch
	}

	for i := range orders {
		if err := e.reconcileOrder(&orders[i], liveByTx, closedByTx); err != nil {
			e.logger.Error("[ChannelWatch] failed to reconcile order", map[string]string{
				"orderId": orders[i].ID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

func (e *Engine) reconcileOrder(order *model.Order, live map[string]lnrpc.Channel, closed map[string]lnrpc.ClosedChannel) error {
	if order.ChannelOpenTx == nil {
		return errors.Errorf("order in state %s has no funding transaction on record", order.State)
	}
	fundingTx := order.ChannelOpenTx.TransactionID

	if closedChannel, ok := closed[fundingTx]; ok {
		return e.markClosed(order, closedChannel)
	}

	channel, ok := live[fundingTx]
	if !ok {
		// Not visible yet: funding tx still propagating, or the node view is
		// lagging. Next cycle will see it.
		return nil
	}

	if order.State == model.OrderStateOpening && !channel.IsOpening && !channel.IsClosing {
		fields := map[string]interface{}{
			"lightning_channel_id": channel.ID,
		}
		if order.ChannelExpiryAt == nil {
			expiry := timeNow().Add(time.Duration(order.ChannelExpiryWeeks) * 7 * 24 * time.Hour)
			fields["channel_expiry_at"] = expiry
		}
		_, err := e.sm.Apply(order.ID, statemachine.TransitionChannelOpen, fields)
		return err
	}
	return nil
}

func (e *Engine) markClosed(order *model.Order, closedChannel lnrpc.ClosedChannel) error {
	fields := map[string]interface{}{
		"channel_close_tx": &model.ChannelTx{
			TransactionID: closedChannel.CloseTransactionID,
			Ts:            timeNow(),
		},
	}
	if closedChannel.ID != "" {
		fields["lightning_channel_id"] = closedChannel.ID
	}

	early := order.ChannelExpiryAt != nil && timeNow().Before(*order.ChannelExpiryAt)
	if early {
		fields["channel_closed_early"] = true
	}

	if _, err := e.sm.Apply(order.ID, statemachine.TransitionChannelClosed, fields); err != nil {
		return err
	}
	if early {
		e.alert.Notify(alert.LevelNotice, "chanwatch",
			fmt.Sprintf("order %s: channel closed before its lease expiry (close tx %s)", order.ID, closedChannel.CloseTransactionID))
	}
	return nil
}

// WatchChannelEvents consumes the node's channel event feed and runs a
// reconcile pass on every state change, so closures and confirmations are
// noticed between polling cycles.
func (e *Engine) WatchChannelEvents(ctx context.Context) {
	for {
		events, err := e.lnRpc.SubscribeChannelEvents(ctx)
		if err != nil {
			e.logger.Error("[ChannelWatch] failed to subscribe to channel events", map[string]string{
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
			e.logger.Debug("[ChannelWatch] channel event", map[string]string{
				"channelId": event.ChannelID,
				"newState":  event.NewState,
			})
			if err := e.WatchChannels(ctx); err != nil {
				e.logger.Error("[ChannelWatch] event-triggered reconcile failed", map[string]string{
					"error": err.Error(),
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
