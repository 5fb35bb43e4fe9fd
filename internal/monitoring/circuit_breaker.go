package monitoring

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

// CircuitBreakerConfig tunes the breaker around an external worker.
type CircuitBreakerConfig struct {
	MaxRequests                 uint32
	Interval                    time.Duration
	Timeout                     time.Duration
	ConsecutiveFailureThreshold int
}

// DefaultLnRpcBreakerConfig is tuned for the Lightning worker: channel opens
// are slow, so the breaker is lenient about request duration but trips fast
// on consecutive failures.
var DefaultLnRpcBreakerConfig = CircuitBreakerConfig{
	MaxRequests:                 3,
	Interval:                    30 * time.Second,
	Timeout:                     60 * time.Second,
	ConsecutiveFailureThreshold: 5,
}

// CircuitBreakerLnRpc wraps lnrpc.ILnRpc so a misbehaving Lightning worker
// sheds load instead of stalling every engine loop. Event subscriptions pass
// through untouched: they carry their own reconnect logic.
type CircuitBreakerLnRpc struct {
	wrapped        lnrpc.ILnRpc
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
}

var _ lnrpc.ILnRpc = (*CircuitBreakerLnRpc)(nil)

func NewCircuitBreakerLnRpc(wrapped lnrpc.ILnRpc, config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerLnRpc {
	cb := &CircuitBreakerLnRpc{
		wrapped: wrapped,
		metrics: metrics,
		logger:  logger,
	}

	cb.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ln_rpc",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("[CircuitBreaker] state change", map[string]string{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(name, to)
		},
	})
	return cb
}

func (cb *CircuitBreakerLnRpc) execute(operation string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	result, err := cb.circuitBreaker.Execute(fn)
	status := "success"
	if err != nil {
		status = "error"
	}
	cb.metrics.RecordAPICall("ln_rpc", operation, status, time.Since(start).Seconds())
	return result, err
}

func (cb *CircuitBreakerLnRpc) AddPeer(ctx context.Context, publicKey, socket string) error {
	_, err := cb.execute("addPeer", func() (interface{}, error) {
		return nil, cb.wrapped.AddPeer(ctx, publicKey, socket)
	})
	return err
}

func (cb *CircuitBreakerLnRpc) OpenChannel(ctx context.Context, params lnrpc.OpenChannelParams) (*lnrpc.OpenChannelResult, error) {
	result, err := cb.execute("openChannel", func() (interface{}, error) {
		return cb.wrapped.OpenChannel(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return result.(*lnrpc.OpenChannelResult), nil
}

func (cb *CircuitBreakerLnRpc) CloseChannel(ctx context.Context, channelID string) (*lnrpc.CloseChannelResult, error) {
	result, err := cb.execute("closeChannel", func() (interface{}, error) {
		return cb.wrapped.CloseChannel(ctx, channelID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*lnrpc.CloseChannelResult), nil
}

func (cb *CircuitBreakerLnRpc) ListChannels(ctx context.Context) ([]lnrpc.Channel, error) {
	result, err := cb.execute("listChannels", func() (interface{}, error) {
		return cb.wrapped.ListChannels(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]lnrpc.Channel), nil
}

func (cb *CircuitBreakerLnRpc) ListClosedChannels(ctx context.Context) ([]lnrpc.ClosedChannel, error) {
	result, err := cb.execute("listClosedChannels", func() (interface{}, error) {
		return cb.wrapped.ListClosedChannels(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]lnrpc.ClosedChannel), nil
}

func (cb *CircuitBreakerLnRpc) GetInfo(ctx context.Context) (*lnrpc.NodeInfo, error) {
	result, err := cb.execute("getInfo", func() (interface{}, error) {
		return cb.wrapped.GetInfo(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*lnrpc.NodeInfo), nil
}

func (cb *CircuitBreakerLnRpc) GetOnChainBalance(ctx context.Context) (int64, error) {
	result, err := cb.execute("getOnChainBalance", func() (interface{}, error) {
		return cb.wrapped.GetOnChainBalance(ctx)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

func (cb *CircuitBreakerLnRpc) CreateHodlInvoice(ctx context.Context, amountSat int64, memo string) (*lnrpc.HodlInvoice, error) {
	result, err := cb.execute("createHodlInvoice", func() (interface{}, error) {
		return cb.wrapped.CreateHodlInvoice(ctx, amountSat, memo)
	})
	if err != nil {
		return nil, err
	}
	return result.(*lnrpc.HodlInvoice), nil
}

func (cb *CircuitBreakerLnRpc) SettleHodlInvoice(ctx context.Context, invoiceID string) error {
	_, err := cb.execute("settleHodlInvoice", func() (interface{}, error) {
		return nil, cb.wrapped.SettleHodlInvoice(ctx, invoiceID)
	})
	return err
}

func (cb *CircuitBreakerLnRpc) CancelHodlInvoice(ctx context.Context, invoiceID string) error {
	_, err := cb.execute("cancelHodlInvoice", func() (interface{}, error) {
		return nil, cb.wrapped.CancelHodlInvoice(ctx, invoiceID)
	})
	return err
}

func (cb *CircuitBreakerLnRpc) GetInvoice(ctx context.Context, invoiceID string) (*lnrpc.HodlInvoice, error) {
	result, err := cb.execute("getInvoice", func() (interface{}, error) {
		return cb.wrapped.GetInvoice(ctx, invoiceID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*lnrpc.HodlInvoice), nil
}

func (cb *CircuitBreakerLnRpc) SubscribeInvoiceEvents(ctx context.Context) (<-chan lnrpc.InvoiceEvent, error) {
	return cb.wrapped.SubscribeInvoiceEvents(ctx)
}

func (cb *CircuitBreakerLnRpc) SubscribeChannelEvents(ctx context.Context) (<-chan lnrpc.ChannelEvent, error) {
	return cb.wrapped.SubscribeChannelEvents(ctx)
}
