package order

import (
	"time"

	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/model"
)

const defaultListLimit = 100

type Store struct {
}

func New() IStore {
	return &Store{}
}

func (s *Store) Create(db *gorm.DB, order *model.Order) (*model.Order, error) {
	return order, db.Create(order).Error
}

func (s *Store) GetByID(db *gorm.DB, id string) (*model.Order, error) {
	var order model.Order
	err := db.Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetByInvoiceID(db *gorm.DB, invoiceID string) (*model.Order, error) {
	var order model.Order
	err := db.Where("ln_invoice ->> 'id' = ?", invoiceID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetByRenewalInvoiceID(db *gorm.DB, invoiceID string) (*model.Order, error) {
	var order model.Order
	err := db.Where("renewal_quote -> 'ln_invoice' ->> 'id' = ?", invoiceID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) List(db *gorm.DB, filter ListFilter) ([]model.Order, error) {
	q := db.Model(&model.Order{})

	if filter.OrderID != "" {
		q = q.Where("id = ?", filter.OrderID)
	}
	if filter.State != nil {
		q = q.Where("state = ?", *filter.State)
	}
	if len(filter.States) > 0 {
		q = q.Where("state IN ?", filter.States)
	}
	if filter.RemoteNodeKey != "" {
		q = q.Where("remote_node ->> 'public_key' = ?", filter.RemoteNodeKey)
	}
	if filter.ExpiredChannels {
		q = q.Where("state = ? AND channel_expiry_at <= ?", model.OrderStateOpen, time.Now())
	}

	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var orders []model.Order
	err := q.Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

func (s *Store) ListPendingPayment(db *gorm.DB, now time.Time, window time.Duration) ([]model.Order, error) {
	var orders []model.Order
	err := db.
		Where("state = ?", model.OrderStateCreated).
		Where("btc_address <> ''").
		Where("order_expiry_at <= ?", now.Add(window)).
		Find(&orders).Error
	return orders, err
}

func (s *Store) ListOpenable(db *gorm.DB, now time.Time, lookback time.Duration, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := db.
		Where("state = ?", model.OrderStateURISet).
		Where("created_at >= ?", now.Add(-lookback)).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (s *Store) ListWatchable(db *gorm.DB, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := db.
		Where("state IN ?", []model.OrderState{
			model.OrderStateOpening,
			model.OrderStateOpen,
			model.OrderStateClosing,
		}).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (s *Store) ListExpiredOpen(db *gorm.DB, now time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := db.
		Where("state = ?", model.OrderStateOpen).
		Where("channel_expiry_at <= ?", now).
		Find(&orders).Error
	return orders, err
}

func (s *Store) UpdateFields(db *gorm.DB, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return db.Model(&model.Order{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (s *Store) UpdateFieldsFromState(db *gorm.DB, id string, fromState model.OrderState, fields map[string]interface{}) (bool, error) {
	fields["updated_at"] = time.Now()
	res := db.Model(&model.Order{}).
		Where("id = ? AND state = ?", id, fromState).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkExpired(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Model(&model.Order{}).
		Where("state = ?", model.OrderStateCreated).
		Where("order_expiry_at <= ?", now).
		Where("jsonb_array_length(COALESCE(onchain_payments, '[]'::jsonb)) > 0").
		Updates(map[string]interface{}{
			"state":      model.OrderStateExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
