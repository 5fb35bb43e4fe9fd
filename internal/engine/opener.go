package engine

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

// OpenChannels runs one channel-open dispatch cycle: claimed orders inside
// the lookback window, oldest first, strictly sequential so the global
// throttle and peer connections are not raced.
func (e *Engine) OpenChannels(ctx context.Context) error {
	orders, err := e.store.Order.ListOpenable(e.db, timeNow(), e.cfg.Order.OpenLookback, e.cfg.Order.OpenBatchSize)
	if err != nil {
		return errors.Wrap(err, "failed to list openable orders")
	}

	for i := range orders {
		if !e.throttle.Allow() {
			// Skipped orders are picked up next cycle without counting as a
			// failed attempt.
			e.logger.Info("[ChannelOpener] open throttle reached, deferring remaining orders", map[string]string{
				"deferred": fmt.Sprintf("%d", len(orders)-i),
			})
			e.alert.Notify(alert.LevelNotice, "opener",
				fmt.Sprintf("channel open throttle reached, %d orders deferred to next cycle", len(orders)-i))
			break
		}
		e.openChannel(ctx, &orders[i])
	}
	return nil
}

func (e *Engine) openChannel(ctx context.Context, order *model.Order) {
	// Connecting first improves the open's odds but is not required for it.
	if err := e.lnRpc.AddPeer(ctx, order.RemoteNode.PublicKey, order.RemoteNode.Address); err != nil {
		e.logger.Info("[ChannelOpener] add peer failed, attempting open anyway", map[string]string{
			"orderId": order.ID,
			"peer":    order.RemoteNode.PublicKey,
			"error":   err.Error(),
		})
	}

	result, err := e.lnRpc.OpenChannel(ctx, openParams(order))

	var openErr *ChannelOpenError
	switch {
	case err != nil:
		openErr = ClassifyOpenError(err.Error())
	case result.TransactionID == "":
		openErr = NewChannelOpenError(ErrNoTxID, "channel open returned no funding transaction id")
	}

	if openErr != nil {
		e.recordFailedAttempt(order, openErr)
		return
	}

	_, err = e.sm.Apply(order.ID, statemachine.TransitionStartOpen, map[string]interface{}{
		"channel_open_tx": &model.ChannelTx{
			TransactionID: result.TransactionID,
			Ts:            timeNow(),
		},
	})
	if err != nil {
		e.logger.Error("[ChannelOpener] channel funded but order update failed", map[string]string{
			"orderId": order.ID,
			"tx":      result.TransactionID,
			"error":   err.Error(),
		})
		return
	}
	e.alert.Notify(alert.LevelInfo, "opener",
		fmt.Sprintf("order %s: opening channel to %s, funding tx %s", order.ID, order.RemoteNode.PublicKey, result.TransactionID))
}

// openParams computes the channel-open parameters. The local side must fund
// at least as much as the requested remote balance; any requested remote
// balance is folded into the funding amount and pushed to the counterparty.
func openParams(order *model.Order) lnrpc.OpenChannelParams {
	local := order.LocalBalance
	if local < order.RemoteBalance {
		local = order.RemoteBalance
	}
	return lnrpc.OpenChannelParams{
		RemotePublicKey: order.RemoteNode.PublicKey,
		LocalAmountSat:  local + order.RemoteBalance,
		PushAmountSat:   order.RemoteBalance,
		IsPrivate:       order.PrivateChannel,
	}
}

// recordFailedAttempt appends the classified failure to the order's attempt
// history and decides between retrying next cycle and giving up. Consecutive
// attempts failing with the same kind collapse into one entry so a flapping
// peer cannot grow the history without bound.
func (e *Engine) recordFailedAttempt(order *model.Order, openErr *ChannelOpenError) {
	e.logger.Warn("[ChannelOpener] channel open failed", map[string]string{
		"orderId": order.ID,
		"kind":    string(openErr.Kind),
		"error":   openErr.Raw,
	})
	if openErr.Alert {
		e.alert.Notify(alert.LevelError, "opener",
			fmt.Sprintf("order %s: channel open failed with %s: %s", order.ID, openErr.Kind, openErr.Raw))
	}

	attempt := model.OpenAttempt{
		Ts:           openErr.Ts,
		Error:        openErr.Raw,
		ChannelError: string(openErr.Kind),
		GiveUp:       openErr.GiveUp,
	}
	results := order.OrderResults
	if n := len(results); n > 0 && results[n-1].ChannelError == attempt.ChannelError {
		results[n-1] = attempt
	} else {
		results = append(results, attempt)
	}
	order.OrderResults = results

	giveUp := openErr.GiveUp || len(results) >= e.cfg.Order.MaxChannelOpenAttempts
	if !giveUp {
		if err := e.store.Order.UpdateFields(e.db, order.ID, map[string]interface{}{
			"order_result": results,
		}); err != nil {
			e.logger.Error("[ChannelOpener] failed to record open attempt", map[string]string{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
		return
	}

	if _, err := e.sm.Apply(order.ID, statemachine.TransitionGiveUp, map[string]interface{}{
		"order_result": results,
	}); err != nil {
		e.logger.Error("[ChannelOpener] failed to give up on order", map[string]string{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	e.alert.Notify(alert.LevelNotice, "opener",
		fmt.Sprintf("order %s: gave up opening channel after %d attempts (%s)", order.ID, len(results), openErr.Kind))
}
