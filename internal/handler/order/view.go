package order

import (
	"time"

	"github.com/blocktank/channel-backend/internal/model"
)

// OrderView is the customer-facing shape of an order. Internal fields such as
// the attempt history and the remote node source never leave the service; a
// GIVE_UP order exposes only the classified error kind.
type OrderView struct {
	ID                 string     `json:"id"`
	State              int        `json:"state"`
	StateName          string     `json:"state_name"`
	ProductID          string     `json:"product_id"`
	LocalBalance       int64      `json:"local_balance"`
	RemoteBalance      int64      `json:"remote_balance"`
	TotalAmount        int64      `json:"total_amount"`
	ChannelExpiryWeeks int        `json:"channel_expiry_weeks"`
	ChannelExpiryAt    *time.Time `json:"channel_expiry_at,omitempty"`
	OrderExpiryAt      time.Time  `json:"order_expiry_at"`

	BtcAddress       string `json:"btc_address"`
	LnInvoiceRequest string `json:"ln_invoice"`
	AmountReceived   int64  `json:"amount_received"`
	ZeroConf         bool   `json:"zero_conf"`

	RemoteNodePublicKey string `json:"remote_node_public_key,omitempty"`
	PrivateChannel      bool   `json:"private_channel"`

	ChannelOpenTx  string `json:"channel_open_tx,omitempty"`
	ChannelCloseTx string `json:"channel_close_tx,omitempty"`

	ChannelOpenError string `json:"channel_open_error,omitempty"`
	GiveUp           bool   `json:"giveup,omitempty"`

	RenewalInvoice string `json:"renewal_invoice,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func toOrderView(o *model.Order) OrderView {
	v := OrderView{
		ID:                 o.ID,
		State:              int(o.State),
		StateName:          o.State.String(),
		ProductID:          o.ProductID,
		LocalBalance:       o.LocalBalance,
		RemoteBalance:      o.RemoteBalance,
		TotalAmount:        o.TotalAmount,
		ChannelExpiryWeeks: o.ChannelExpiryWeeks,
		ChannelExpiryAt:    o.ChannelExpiryAt,
		OrderExpiryAt:      o.OrderExpiryAt,
		BtcAddress:         o.BtcAddress,
		LnInvoiceRequest:   o.LnInvoice.Request,
		AmountReceived:     o.AmountReceived,
		ZeroConf:           o.ZeroConf,
		PrivateChannel:     o.PrivateChannel,
		CreatedAt:          o.CreatedAt,
	}
	if o.RemoteNode.PublicKey != "" {
		v.RemoteNodePublicKey = o.RemoteNode.PublicKey
	}
	if o.ChannelOpenTx != nil {
		v.ChannelOpenTx = o.ChannelOpenTx.TransactionID
	}
	if o.ChannelCloseTx != nil {
		v.ChannelCloseTx = o.ChannelCloseTx.TransactionID
	}
	if o.State == model.OrderStateGiveUp && len(o.OrderResults) > 0 {
		last := o.OrderResults[len(o.OrderResults)-1]
		v.ChannelOpenError = last.ChannelError
		v.GiveUp = true
	}
	if o.RenewalQuote != nil {
		v.RenewalInvoice = o.RenewalQuote.LnInvoice.Request
	}
	return v
}
