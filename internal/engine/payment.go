package engine

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

// HeightConfirmedNow marks a payment force-confirmed by an operator, outside
// the height-based confirmation rule.
const HeightConfirmedNow int64 = -1

// chainParams maps the configured network name onto btcutil address params.
func (e *Engine) chainParams() *chaincfg.Params {
	switch e.cfg.Bitcoin.Network {
	case "testnet":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// CheckNewBlocks polls the chain tip and runs payment matching once per new
// height. Heights are never skipped: a tip that jumped several blocks is
// walked one height at a time.
func (e *Engine) CheckNewBlocks(ctx context.Context) error {
	best, err := e.btcRpc.GetBestHeight(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get best height")
	}

	e.mu.Lock()
	last := e.lastHeight
	if last == 0 {
		// First run after start, catch up from the current tip only.
		last = best - 1
	}
	e.mu.Unlock()

	for height := last + 1; height <= best; height++ {
		if err := e.processNewBlock(ctx, height); err != nil {
			return err
		}
		e.mu.Lock()
		e.lastHeight = height
		e.mu.Unlock()
	}
	return nil
}

func (e *Engine) processNewBlock(ctx context.Context, height int64) error {
	e.logger.Info("[PaymentMatcher] processing new block", map[string]string{
		"height": fmt.Sprintf("%d", height),
	})

	// The zero-conf risk budget is scoped to one block.
	if _, err := e.store.ZeroConfCounter.Reset(e.db, height); err != nil {
		e.logger.Error("[PaymentMatcher][ResetZeroConfCounter] failed to reset counter", map[string]string{
			"height": fmt.Sprintf("%d", height),
			"error":  err.Error(),
		})
	}

	return e.confirmPayments(ctx, height)
}

// confirmPayments matches the block's transactions to pending orders and
// re-evaluates confirmation depth for every recorded payment.
func (e *Engine) confirmPayments(ctx context.Context, currentHeight int64) error {
	orders, err := e.store.Order.ListPendingPayment(e.db, timeNow(), e.cfg.Order.PaymentWindow)
	if err != nil {
		return errors.Wrap(err, "failed to list pending orders")
	}
	if len(orders) == 0 {
		return nil
	}

	byAddress := make(map[string]*model.Order, len(orders))
	addresses := make([]string, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		if _, err := btcutil.DecodeAddress(o.BtcAddress, e.chainParams()); err != nil {
			e.logger.Warn("[PaymentMatcher] order carries an invalid receive address", map[string]string{
				"orderId": o.ID,
				"address": o.BtcAddress,
			})
			continue
		}
		byAddress[o.BtcAddress] = o
		addresses = append(addresses, o.BtcAddress)
	}
	if len(addresses) == 0 {
		return nil
	}

	txs, err := e.btcRpc.GetHeightTransactions(ctx, currentHeight, addresses)
	if err != nil {
		return errors.Wrap(err, "failed to get block transactions")
	}

	for _, tx := range txs {
		order, ok := byAddress[tx.To]
		if !ok {
			continue
		}
		if err := e.creditPayment(ctx, order, tx); err != nil {
			// One bad order never blocks the rest of the block.
			e.logger.Error("[PaymentMatcher] failed to credit payment", map[string]string{
				"orderId": order.ID,
				"tx":      tx.Hash,
				"error":   err.Error(),
			})
		}
	}

	for _, order := range byAddress {
		if order.State != model.OrderStateCreated {
			continue
		}
		if err := e.settleConfirmations(ctx, order, currentHeight); err != nil {
			e.logger.Error("[PaymentMatcher] failed to settle confirmations", map[string]string{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// creditPayment screens the sender and appends the payment, deduplicated by
// transaction hash.
func (e *Engine) creditPayment(ctx context.Context, order *model.Order, tx btcrpc.ChainTransaction) error {
	if order.OnchainPayments.ContainsHash(tx.Hash) {
		return nil
	}

	result, err := e.compliance.IsAddressBlacklisted(ctx, []string{tx.From})
	if err != nil {
		return errors.Wrap(err, "blacklist screen failed")
	}
	if result.Blacklisted {
		e.alert.Notify(alert.LevelError, "compliance",
			fmt.Sprintf("order %s rejected: payment %s from blacklisted address %s", order.ID, tx.Hash, tx.From))
		updated, err := e.sm.Apply(order.ID, statemachine.TransitionReject, nil)
		if err != nil {
			return err
		}
		*order = *updated
		return nil
	}

	order.OnchainPayments = append(order.OnchainPayments, model.OnchainPayment{
		Hash:      tx.Hash,
		To:        tx.To,
		From:      tx.From,
		AmountSat: tx.AmountSat,
		Height:    tx.Height,
	})
	return e.store.Order.UpdateFields(e.db, order.ID, map[string]interface{}{
		"onchain_payments": order.OnchainPayments,
	})
}

// settleConfirmations flips payments to confirmed once the chain has built
// enough blocks on top of them, and pays the order when confirmed funds cover
// the total. Each payment is re-fetched from the worker before the flip so a
// transaction dropped in a reorg never counts as good funds.
func (e *Engine) settleConfirmations(ctx context.Context, order *model.Order, currentHeight int64) error {
	changed := false
	for i, p := range order.OnchainPayments {
		if p.Confirmed || p.Height == nil {
			continue
		}
		if *p.Height != HeightConfirmedNow && currentHeight < *p.Height+e.cfg.Order.MinConfirmations {
			continue
		}
		if *p.Height != HeightConfirmedNow {
			if _, err := e.btcRpc.GetTransaction(ctx, p.Hash); err != nil {
				e.logger.Warn("[PaymentMatcher] payment no longer visible on chain, skipping", map[string]string{
					"orderId": order.ID,
					"tx":      p.Hash,
					"error":   err.Error(),
				})
				continue
			}
		}
		order.OnchainPayments[i].Confirmed = true
		changed = true
	}
	if !changed {
		return nil
	}

	confirmed := order.ConfirmedAmount()
	if confirmed >= order.TotalAmount {
		_, err := e.sm.Apply(order.ID, statemachine.TransitionPay, map[string]interface{}{
			"onchain_payments": order.OnchainPayments,
			"amount_received":  confirmed,
		})
		return err
	}
	return e.store.Order.UpdateFields(e.db, order.ID, map[string]interface{}{
		"onchain_payments": order.OnchainPayments,
	})
}

// ManualConfirm force-confirms one order/transaction pair out of band. The
// per-order guard keeps it mutually exclusive with itself and with other
// manual actions on the same order.
func (e *Engine) ManualConfirm(ctx context.Context, orderID, txid string) (*model.Order, error) {
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return nil, errors.Wrapf(err, "invalid transaction id %q", txid)
	}

	if !e.guards.Acquire(orderID) {
		return nil, errors.Errorf("order %s already has a manual action in flight", orderID)
	}
	defer e.guards.Release(orderID)

	order, err := e.store.Order.GetByID(e.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != model.OrderStateCreated {
		return nil, errors.Errorf("order %s is not awaiting payment (state %s)", orderID, order.State)
	}

	outputs, err := e.btcRpc.ParseTransaction(ctx, txid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse transaction")
	}

	credited := false
	for _, tx := range outputs {
		if tx.To != order.BtcAddress {
			continue
		}
		credited = true
		if idx := paymentIndex(order.OnchainPayments, tx.Hash); idx >= 0 {
			order.OnchainPayments[idx].Confirmed = true
		} else {
			height := HeightConfirmedNow
			order.OnchainPayments = append(order.OnchainPayments, model.OnchainPayment{
				Hash:      tx.Hash,
				To:        tx.To,
				From:      tx.From,
				AmountSat: tx.AmountSat,
				Height:    &height,
				Confirmed: true,
			})
		}
	}
	if !credited {
		return nil, errors.Errorf("transaction %s pays no output to order %s", txid, orderID)
	}

	confirmed := order.ConfirmedAmount()
	if confirmed >= order.TotalAmount {
		return e.sm.Apply(order.ID, statemachine.TransitionPay, map[string]interface{}{
			"onchain_payments": order.OnchainPayments,
			"amount_received":  confirmed,
		})
	}
	if err := e.store.Order.UpdateFields(e.db, order.ID, map[string]interface{}{
		"onchain_payments": order.OnchainPayments,
	}); err != nil {
		return nil, err
	}
	return e.store.Order.GetByID(e.db, order.ID)
}

func paymentIndex(payments model.OnchainPayments, hash string) int {
	for i, p := range payments {
		if p.Hash == hash {
			return i
		}
	}
	return -1
}
