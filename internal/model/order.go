package model

import (
	"database/sql/driver"
	"time"
)

// OnchainPayment is one on-chain transaction credited against an order.
// Height is nil while the transaction is only seen in the mempool.
type OnchainPayment struct {
	Hash      string `json:"hash"`
	To        string `json:"to"`
	From      string `json:"from"`
	AmountSat int64  `json:"amount_sat"`
	Height    *int64 `json:"height,omitempty"`
	ZeroConf  bool   `json:"zero_conf"`
	Confirmed bool   `json:"confirmed"`
}

type OnchainPayments []OnchainPayment

func (p OnchainPayments) Value() (driver.Value, error) { return jsonbValue(p) }
func (p *OnchainPayments) Scan(value interface{}) error { return jsonbScan(p, value) }

// ContainsHash reports whether a payment with the given transaction hash has
// already been recorded. Hashes are unique within an order.
func (p OnchainPayments) ContainsHash(hash string) bool {
	for _, payment := range p {
		if payment.Hash == hash {
			return true
		}
	}
	return false
}

// LnInvoice is the hold invoice issued for paying an order over Lightning.
type LnInvoice struct {
	ID        string `json:"id"`
	Request   string `json:"request"`
	AmountSat int64  `json:"amount_sat"`
}

func (i LnInvoice) Value() (driver.Value, error) { return jsonbValue(i) }
func (i *LnInvoice) Scan(value interface{}) error { return jsonbScan(i, value) }

// RemoteNode is the customer's Lightning node, set when the channel is claimed.
type RemoteNode struct {
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

func (n RemoteNode) Value() (driver.Value, error) { return jsonbValue(n) }
func (n *RemoteNode) Scan(value interface{}) error { return jsonbScan(n, value) }

// ChannelTx references an on-chain funding or close transaction.
type ChannelTx struct {
	TransactionID string    `json:"transaction_id"`
	Ts            time.Time `json:"ts"`
}

func (t ChannelTx) Value() (driver.Value, error) { return jsonbValue(t) }
func (t *ChannelTx) Scan(value interface{}) error { return jsonbScan(t, value) }

// OpenAttempt records one channel-open attempt and its classified outcome.
type OpenAttempt struct {
	Ts           time.Time `json:"ts"`
	Error        string    `json:"error,omitempty"`
	ChannelError string    `json:"channel_error,omitempty"`
	GiveUp       bool      `json:"giveup"`
}

type OpenAttempts []OpenAttempt

func (a OpenAttempts) Value() (driver.Value, error) { return jsonbValue(a) }
func (a *OpenAttempts) Scan(value interface{}) error { return jsonbScan(a, value) }

// Renewal extends an open channel's lease after a renewal invoice settles.
type Renewal struct {
	PreviousChannelExpiry *time.Time `json:"previous_channel_expiry,omitempty"`
	LnInvoice             LnInvoice  `json:"ln_invoice"`
	ChannelExpiry         time.Time  `json:"channel_expiry"`
	SettledAt             time.Time  `json:"settled_at"`
}

func (r Renewal) Value() (driver.Value, error) { return jsonbValue(r) }
func (r *Renewal) Scan(value interface{}) error { return jsonbScan(r, value) }

type Renewals []Renewal

func (r Renewals) Value() (driver.Value, error) { return jsonbValue(r) }
func (r *Renewals) Scan(value interface{}) error { return jsonbScan(r, value) }

// Order is a single channel purchase and everything learned about it over its
// lifetime. Mutated only through the engine's transition operations.
type Order struct {
	ID        string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	State     OrderState `gorm:"column:state;not null;index" json:"state"`
	ProductID string     `gorm:"column:product_id;type:varchar(255)" json:"product_id"`

	LocalBalance  int64 `gorm:"column:local_balance;not null" json:"local_balance"`
	RemoteBalance int64 `gorm:"column:remote_balance;not null" json:"remote_balance"`
	TotalAmount   int64 `gorm:"column:total_amount;not null" json:"total_amount"`

	ChannelExpiryWeeks int        `gorm:"column:channel_expiry_weeks" json:"channel_expiry_weeks"`
	ChannelExpiryAt    *time.Time `gorm:"column:channel_expiry_at" json:"channel_expiry_at,omitempty"`
	OrderExpiryAt      time.Time  `gorm:"column:order_expiry_at;index" json:"order_expiry_at"`

	BtcAddress string    `gorm:"column:btc_address;type:varchar(255);index" json:"btc_address"`
	LnInvoice  LnInvoice `gorm:"column:ln_invoice;type:jsonb" json:"ln_invoice"`

	OnchainPayments OnchainPayments `gorm:"column:onchain_payments;type:jsonb" json:"onchain_payments"`
	AmountReceived  int64           `gorm:"column:amount_received;not null" json:"amount_received"`

	ZeroConf             bool       `gorm:"column:zero_conf;not null" json:"zero_conf"`
	ZeroConfSatVByte     float64    `gorm:"column:zero_conf_satvbyte" json:"zero_conf_satvbyte,omitempty"`
	ZeroConfSatVByteExp  *time.Time `gorm:"column:zero_conf_satvbyte_expiry" json:"zero_conf_satvbyte_expiry,omitempty"`

	RemoteNode     RemoteNode `gorm:"column:remote_node;type:jsonb" json:"remote_node"`
	RemoteNodeSrc  string     `gorm:"column:remote_node_src;type:varchar(64)" json:"remote_node_src,omitempty"`
	PrivateChannel bool       `gorm:"column:private_channel;not null" json:"private_channel"`

	ChannelOpenTx *ChannelTx   `gorm:"column:channel_open_tx;type:jsonb" json:"channel_open_tx,omitempty"`
	OrderResults  OpenAttempts `gorm:"column:order_result;type:jsonb" json:"order_result"`

	LightningChannelID string     `gorm:"column:lightning_channel_id;type:varchar(255)" json:"lightning_channel_id,omitempty"`
	ChannelCloseTx     *ChannelTx `gorm:"column:channel_close_tx;type:jsonb" json:"channel_close_tx,omitempty"`
	ChannelClosedEarly bool       `gorm:"column:channel_closed_early;not null" json:"channel_closed_early"`

	RefundTx   string     `gorm:"column:refund_tx;type:varchar(255)" json:"refund_tx,omitempty"`
	RefundedAt *time.Time `gorm:"column:refunded_at" json:"refunded_at,omitempty"`

	// RenewalQuote is the outstanding renewal invoice, if one was issued and
	// has not settled yet. Moved into Renewals on settlement.
	RenewalQuote *Renewal `gorm:"column:renewal_quote;type:jsonb" json:"renewal_quote,omitempty"`
	Renewals     Renewals `gorm:"column:renewals;type:jsonb" json:"renewals"`

	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// ConfirmedAmount sums the payments marked confirmed (or accepted zero-conf).
func (o *Order) ConfirmedAmount() int64 {
	var total int64
	for _, p := range o.OnchainPayments {
		if p.Confirmed {
			total += p.AmountSat
		}
	}
	return total
}

// PaymentTotal sums every recorded payment regardless of confirmation.
func (o *Order) PaymentTotal() int64 {
	var total int64
	for _, p := range o.OnchainPayments {
		total += p.AmountSat
	}
	return total
}
