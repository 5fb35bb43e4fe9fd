package zeroconfcounter

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blocktank/channel-backend/internal/model"
)

type Store struct {
}

func New() IStore {
	return &Store{}
}

func (s *Store) GetCurrent(db *gorm.DB) (*model.ZeroConfCounter, error) {
	var counter model.ZeroConfCounter
	err := db.Order("block_height DESC").First(&counter).Error
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func (s *Store) Reset(db *gorm.DB, height int64) (*model.ZeroConfCounter, error) {
	counter := &model.ZeroConfCounter{
		BlockHeight: height,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "block_height"}},
		DoNothing: true,
	}).Create(counter).Error
	if err != nil {
		return nil, err
	}

	var current model.ZeroConfCounter
	err = db.Where("block_height = ?", height).First(&current).Error
	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return counter, nil
	}
	if err != nil {
		return nil, err
	}
	return &current, nil
}

func (s *Store) Add(db *gorm.DB, height int64, amount int64, count int64) error {
	return db.Model(&model.ZeroConfCounter{}).
		Where("block_height = ?", height).
		Updates(map[string]interface{}{
			"amount_processed": gorm.Expr("amount_processed + ?", amount),
			"orders_processed": gorm.Expr("orders_processed + ?", count),
		}).Error
}
