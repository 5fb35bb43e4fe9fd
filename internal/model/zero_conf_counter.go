package model

import "time"

// ZeroConfCounter tracks how much unconfirmed value has been accepted as good
// funds within the current block. Durable so a crash mid-block cannot reset
// the risk limits.
type ZeroConfCounter struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	BlockHeight     int64     `gorm:"column:block_height;not null;uniqueIndex"`
	OrdersProcessed int64     `gorm:"column:orders_processed;not null"`
	AmountProcessed int64     `gorm:"column:amount_processed;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (ZeroConfCounter) TableName() string {
	return "zero_conf_counters"
}
