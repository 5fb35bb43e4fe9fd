package zeroconfcounter

import (
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/model"
)

type IStore interface {
	// GetCurrent returns the counter for the highest known block, if any.
	GetCurrent(db *gorm.DB) (*model.ZeroConfCounter, error)

	// Reset starts a fresh counter for height. Re-running for the same height
	// keeps the existing row so accepted totals survive restarts mid-block.
	Reset(db *gorm.DB, height int64) (*model.ZeroConfCounter, error)

	// Add credits an accepted zero-conf payment against the height's counter.
	Add(db *gorm.DB, height int64, amount int64, count int64) error
}
