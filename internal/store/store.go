package store

import (
	"github.com/blocktank/channel-backend/internal/store/order"
	"github.com/blocktank/channel-backend/internal/store/zeroconfcounter"
)

type Store struct {
	Order           order.IStore
	ZeroConfCounter zeroconfcounter.IStore
}

func New() *Store {
	return &Store{
		Order:           order.New(),
		ZeroConfCounter: zeroconfcounter.New(),
	}
}
