package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

// ZeroConfQuote tells a customer whether an amount qualifies for zero-conf
// treatment right now, and at what minimum fee rate.
type ZeroConfQuote struct {
	Eligible       bool      `json:"eligible"`
	MinFeeSatVByte float64   `json:"min_fee_satvbyte,omitempty"`
	FeeExpiry      time.Time `json:"fee_expiry,omitempty"`
}

// ProcessMempool accepts unconfirmed payments as good funds within the
// per-payment and per-block risk budget. Rejections are silent: the order
// stays in CREATED and falls back to confirmation-based matching.
func (e *Engine) ProcessMempool(ctx context.Context) error {
	orders, err := e.store.Order.ListPendingPayment(e.db, timeNow(), e.cfg.Order.PaymentWindow)
	if err != nil {
		return errors.Wrap(err, "failed to list pending orders")
	}

	byAddress := make(map[string]*model.Order)
	addresses := []string{}
	for i := range orders {
		o := &orders[i]
		if !e.zeroConfEligible(o) {
			continue
		}
		byAddress[o.BtcAddress] = o
		addresses = append(addresses, o.BtcAddress)
	}
	if len(addresses) == 0 {
		return nil
	}

	txs, err := e.btcRpc.GetMempoolTransactions(ctx, addresses)
	if err != nil {
		return errors.Wrap(err, "failed to get mempool transactions")
	}

	for _, tx := range txs {
		order, ok := byAddress[tx.To]
		if !ok {
			continue
		}
		if err := e.acceptZeroConf(ctx, order, tx); err != nil {
			e.logger.Error("[ZeroConfGate] failed to process mempool payment", map[string]string{
				"orderId": order.ID,
				"tx":      tx.Hash,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// zeroConfEligible applies the order-level gate: CREATED, not already
// zero-conf flagged, small enough, and with no payments recorded yet.
func (e *Engine) zeroConfEligible(order *model.Order) bool {
	return order.State == model.OrderStateCreated &&
		!order.ZeroConf &&
		order.TotalAmount <= e.cfg.ZeroConf.MaxOrderAmount &&
		len(order.OnchainPayments) == 0
}

func (e *Engine) acceptZeroConf(ctx context.Context, order *model.Order, tx btcrpc.ChainTransaction) error {
	if order.OnchainPayments.ContainsHash(tx.Hash) {
		return nil
	}
	if !tx.ZeroConf {
		// Fee rate below the worker's threshold, wait for confirmations.
		return nil
	}
	if tx.AmountSat > e.cfg.ZeroConf.MaxPaymentAmount {
		e.logger.Info("[ZeroConfGate] payment over per-payment cap, deferring to confirmation", map[string]string{
			"orderId": order.ID,
			"tx":      tx.Hash,
			"amount":  fmt.Sprintf("%d", tx.AmountSat),
		})
		return nil
	}

	counter, err := e.store.ZeroConfCounter.GetCurrent(e.db)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(err, "failed to load zero-conf counter")
	}
	if counter == nil {
		height, err := e.btcRpc.GetBestHeight(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get best height")
		}
		counter, err = e.store.ZeroConfCounter.Reset(e.db, height)
		if err != nil {
			return errors.Wrap(err, "failed to initialize zero-conf counter")
		}
	}
	if counter.AmountProcessed+tx.AmountSat > e.cfg.ZeroConf.MaxTotalAmount {
		e.logger.Info("[ZeroConfGate] per-block amount budget exhausted, deferring to confirmation", map[string]string{
			"orderId": order.ID,
			"tx":      tx.Hash,
		})
		return nil
	}
	if counter.OrdersProcessed+1 > e.cfg.ZeroConf.MaxCount {
		e.logger.Info("[ZeroConfGate] per-block count budget exhausted, deferring to confirmation", map[string]string{
			"orderId": order.ID,
			"tx":      tx.Hash,
		})
		return nil
	}

	result, err := e.compliance.IsAddressBlacklisted(ctx, []string{tx.From})
	if err != nil {
		return errors.Wrap(err, "blacklist screen failed")
	}
	if result.Blacklisted {
		// Leave it to the confirmation path, which rejects the order.
		return nil
	}

	order.OnchainPayments = append(order.OnchainPayments, model.OnchainPayment{
		Hash:      tx.Hash,
		To:        tx.To,
		From:      tx.From,
		AmountSat: tx.AmountSat,
		ZeroConf:  true,
		Confirmed: true,
	})
	order.ZeroConf = true

	// The payment append and the counter charge stand or fall together.
	err = e.inTx(func(dbTx *gorm.DB) error {
		if err := e.store.ZeroConfCounter.Add(dbTx, counter.BlockHeight, tx.AmountSat, 1); err != nil {
			return errors.Wrap(err, "failed to charge zero-conf counter")
		}
		return e.store.Order.UpdateFields(dbTx, order.ID, map[string]interface{}{
			"onchain_payments": order.OnchainPayments,
			"zero_conf":        true,
		})
	})
	if err != nil {
		return err
	}

	confirmed := order.ConfirmedAmount()
	if confirmed >= order.TotalAmount {
		_, err := e.sm.Apply(order.ID, statemachine.TransitionPay, map[string]interface{}{
			"amount_received": confirmed,
		})
		return err
	}
	return nil
}

// CheckZeroConfAmount quotes zero-conf eligibility for a prospective amount,
// including the worker's current minimum fee rate.
func (e *Engine) CheckZeroConfAmount(ctx context.Context, amountSat int64) (*ZeroConfQuote, error) {
	if amountSat <= 0 || amountSat > e.cfg.ZeroConf.MaxOrderAmount || amountSat > e.cfg.ZeroConf.MaxPaymentAmount {
		return &ZeroConfQuote{Eligible: false}, nil
	}

	counter, err := e.store.ZeroConfCounter.GetCurrent(e.db)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "failed to load zero-conf counter")
	}
	if counter != nil {
		if counter.AmountProcessed+amountSat > e.cfg.ZeroConf.MaxTotalAmount ||
			counter.OrdersProcessed+1 > e.cfg.ZeroConf.MaxCount {
			return &ZeroConfQuote{Eligible: false}, nil
		}
	}

	threshold, err := e.btcRpc.GetFeeThreshold(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get fee threshold")
	}
	return &ZeroConfQuote{
		Eligible:       true,
		MinFeeSatVByte: threshold.MinFeeSatVByte,
		FeeExpiry:      threshold.Expiry,
	}, nil
}
