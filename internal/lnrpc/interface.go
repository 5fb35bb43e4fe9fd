package lnrpc

import "context"

type ILnRpc interface {
	AddPeer(ctx context.Context, publicKey, socket string) error
	OpenChannel(ctx context.Context, params OpenChannelParams) (*OpenChannelResult, error)
	CloseChannel(ctx context.Context, channelID string) (*CloseChannelResult, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	ListClosedChannels(ctx context.Context) ([]ClosedChannel, error)
	GetInfo(ctx context.Context) (*NodeInfo, error)
	GetOnChainBalance(ctx context.Context) (int64, error)
	CreateHodlInvoice(ctx context.Context, amountSat int64, memo string) (*HodlInvoice, error)
	SettleHodlInvoice(ctx context.Context, invoiceID string) error
	CancelHodlInvoice(ctx context.Context, invoiceID string) error
	GetInvoice(ctx context.Context, invoiceID string) (*HodlInvoice, error)

	// SubscribeInvoiceEvents streams invoice state changes until ctx is done.
	// The returned channel is closed when the subscription ends.
	SubscribeInvoiceEvents(ctx context.Context) (<-chan InvoiceEvent, error)

	// SubscribeChannelEvents streams channel state changes until ctx is done.
	SubscribeChannelEvents(ctx context.Context) (<-chan ChannelEvent, error)
}
