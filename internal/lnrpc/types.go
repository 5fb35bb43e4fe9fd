package lnrpc

import "time"

// NodeInfo describes the service's own Lightning node.
type NodeInfo struct {
	PublicKey     string   `json:"public_key"`
	Alias         string   `json:"alias"`
	URIs          []string `json:"uris"`
	BlockHeight   int64    `json:"block_height"`
	SyncedToChain bool     `json:"synced_to_chain"`
}

// Channel is one entry of the node's live channel list.
type Channel struct {
	ID               string `json:"id"`
	TransactionID    string `json:"transaction_id"`
	PartnerPublicKey string `json:"partner_public_key"`
	LocalBalance     int64  `json:"local_balance"`
	RemoteBalance    int64  `json:"remote_balance"`
	IsOpening        bool   `json:"is_opening"`
	IsClosing        bool   `json:"is_closing"`
	IsPrivate        bool   `json:"is_private"`
}

// ClosedChannel is one entry of the node's closed channel list.
type ClosedChannel struct {
	ID                 string `json:"id"`
	TransactionID      string `json:"transaction_id"`
	CloseTransactionID string `json:"close_transaction_id"`
}

type OpenChannelParams struct {
	RemotePublicKey string `json:"remote_pub_key"`
	LocalAmountSat  int64  `json:"local_amt"`
	PushAmountSat   int64  `json:"give_tokens"`
	IsPrivate       bool   `json:"is_private"`
}

type OpenChannelResult struct {
	TransactionID   string `json:"transaction_id"`
	TransactionVout int    `json:"transaction_vout"`
}

type CloseChannelResult struct {
	TransactionID string `json:"transaction_id"`
}

type HodlInvoice struct {
	ID         string `json:"id"`
	Request    string `json:"request"`
	AmountSat  int64  `json:"amount_sat"`
	IsHeld     bool   `json:"is_held"`
	IsSettled  bool   `json:"is_settled"`
	IsCanceled bool   `json:"is_canceled"`
}

// Invoice lifecycle states reported by the node service.
const (
	InvoiceStateHolding  = "holding"
	InvoiceStatePaid     = "paid"
	InvoiceStateCanceled = "canceled"
)

type InvoiceEvent struct {
	InvoiceID string    `json:"invoice_id"`
	OldState  string    `json:"old_state"`
	NewState  string    `json:"new_state"`
	Ts        time.Time `json:"ts"`
}

// Channel lifecycle states reported by the node service.
const (
	ChannelStateOpening = "opening"
	ChannelStateOpen    = "open"
	ChannelStateClosed  = "closed"
)

type ChannelEvent struct {
	ChannelID     string    `json:"channel_id"`
	TransactionID string    `json:"transaction_id"`
	NewState      string    `json:"new_state"`
	Ts            time.Time `json:"ts"`
}
