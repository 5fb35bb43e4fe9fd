package order

import (
	"time"

	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/model"
)

// ListFilter narrows admin order queries. Zero values are ignored.
type ListFilter struct {
	State           *model.OrderState
	States          []model.OrderState
	OrderID         string
	RemoteNodeKey   string
	ExpiredChannels bool
	Limit           int
	Offset          int
}

type IStore interface {
	Create(db *gorm.DB, order *model.Order) (*model.Order, error)
	GetByID(db *gorm.DB, id string) (*model.Order, error)
	GetByInvoiceID(db *gorm.DB, invoiceID string) (*model.Order, error)

	// GetByRenewalInvoiceID resolves an order by its outstanding renewal
	// invoice.
	GetByRenewalInvoiceID(db *gorm.DB, invoiceID string) (*model.Order, error)

	// List runs a paged admin query sorted by created_at descending.
	List(db *gorm.DB, filter ListFilter) ([]model.Order, error)

	// ListPendingPayment returns CREATED orders with a receive address whose
	// payment window has opened. Orders past order_expiry_at stay listed so a
	// payment made in time still settles; only ExpireOrders ends the window.
	ListPendingPayment(db *gorm.DB, now time.Time, window time.Duration) ([]model.Order, error)

	// ListOpenable returns URI_SET orders created within the lookback window,
	// oldest first, capped at limit.
	ListOpenable(db *gorm.DB, now time.Time, lookback time.Duration, limit int) ([]model.Order, error)

	// ListWatchable returns orders in OPENING, OPEN or CLOSING.
	ListWatchable(db *gorm.DB, limit int) ([]model.Order, error)

	// ListExpiredOpen returns OPEN orders whose channel lease has lapsed.
	ListExpiredOpen(db *gorm.DB, now time.Time) ([]model.Order, error)

	UpdateFields(db *gorm.DB, id string, fields map[string]interface{}) error

	// UpdateFieldsFromState applies fields only while the order is still in
	// fromState, and reports whether a row was changed. The conditional write is
	// what keeps racing writers from double-applying a transition.
	UpdateFieldsFromState(db *gorm.DB, id string, fromState model.OrderState, fields map[string]interface{}) (bool, error)

	// MarkExpired flips CREATED orders past their payment window that have at
	// least one recorded payment to EXPIRED. Returns the number of orders moved.
	MarkExpired(db *gorm.DB, now time.Time) (int64, error)
}
