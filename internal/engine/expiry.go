package engine

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ExpireOrders moves orders past their payment window into EXPIRED. Only
// orders that received at least a partial payment are touched here, so a
// later refund still has something to work from; unpaid orders simply stop
// matching once the window lapses.
func (e *Engine) ExpireOrders(ctx context.Context) error {
	count, err := e.store.Order.MarkExpired(e.db, timeNow())
	if err != nil {
		return errors.Wrap(err, "failed to expire orders")
	}
	if count > 0 {
		e.logger.Info("[OrderExpiry] expired underpaid orders", map[string]string{
			"count": fmt.Sprintf("%d", count),
		})
	}
	return nil
}
