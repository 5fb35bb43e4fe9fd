package engine

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/compliance"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/statemachine"
	"github.com/blocktank/channel-backend/internal/store"
	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

const chanCloseTimerKey = "chan_close"

// timeNow is swapped out in tests.
var timeNow = time.Now

// Engine drives orders through the lifecycle. All mutations go through the
// state machine so every writer keeps the single-writer-per-target rule.
type Engine struct {
	db         *gorm.DB
	store      *store.Store
	cfg        *config.AppConfig
	logger     *logger.Logger
	sm         *statemachine.StateMachine
	lnRpc      lnrpc.ILnRpc
	btcRpc     btcrpc.IBtcRpc
	compliance compliance.ICompliance
	alert      alert.IAlert

	throttle *Throttle
	guards   *KeyedGuard
	timers   *TimerRegistry

	// inTx runs fn inside a database transaction. Swapped out in tests.
	inTx func(fn func(tx *gorm.DB) error) error

	mu         sync.Mutex
	lastHeight int64
}

var _ IEngine = (*Engine)(nil)

func New(
	db *gorm.DB,
	s *store.Store,
	cfg *config.AppConfig,
	l *logger.Logger,
	sm *statemachine.StateMachine,
	ln lnrpc.ILnRpc,
	btc btcrpc.IBtcRpc,
	comp compliance.ICompliance,
	al alert.IAlert,
) *Engine {
	return &Engine{
		inTx: func(fn func(tx *gorm.DB) error) error {
			return store.DoInTx(db, fn)
		},
		db:         db,
		store:      s,
		cfg:        cfg,
		logger:     l,
		sm:         sm,
		lnRpc:      ln,
		btcRpc:     btc,
		compliance: comp,
		alert:      al,
		throttle:   NewThrottle(cfg.Order.ThrottleMaxAttempts, cfg.Order.ThrottleWindow),
		guards:     NewKeyedGuard(),
		timers:     NewTimerRegistry(),
	}
}
