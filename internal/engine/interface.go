package engine

import (
	"context"

	"github.com/blocktank/channel-backend/internal/model"
)

// IEngine is the order lifecycle engine: background reconciliation loops plus
// the externally-triggered single-order actions.
type IEngine interface {
	// Background loops, scheduled by the server.
	CheckNewBlocks(ctx context.Context) error
	ProcessMempool(ctx context.Context) error
	ExpireOrders(ctx context.Context) error
	OpenChannels(ctx context.Context) error
	WatchChannels(ctx context.Context) error

	// Event subscription loops. Block until ctx is done.
	WatchInvoices(ctx context.Context)
	WatchChannelEvents(ctx context.Context)

	// Customer actions.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*model.Order, error)
	ClaimChannel(ctx context.Context, orderID, nodeURI, src string, private bool) (*model.Order, error)
	RequestRenewal(ctx context.Context, orderID string, weeks int, amountSat int64) (*model.Order, error)
	CheckZeroConfAmount(ctx context.Context, amountSat int64) (*ZeroConfQuote, error)

	// Operator actions.
	ManualConfirm(ctx context.Context, orderID, txid string) (*model.Order, error)
	RefundOrder(ctx context.Context, orderID, refundTx string) (*model.Order, error)
	CloseExpiredChannels(ctx context.Context) (*CloseSchedule, error)
}
