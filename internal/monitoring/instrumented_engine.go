package monitoring

import (
	"context"

	"github.com/blocktank/channel-backend/internal/engine"
	"github.com/blocktank/channel-backend/internal/events"
	"github.com/blocktank/channel-backend/internal/model"
)

// InstrumentedEngine wraps the lifecycle engine's background loops with job
// status tracking and metrics. Single-order actions pass straight through.
type InstrumentedEngine struct {
	engine.IEngine
	statusManager *JobStatusManager
}

func NewInstrumentedEngine(base engine.IEngine, statusManager *JobStatusManager) *InstrumentedEngine {
	for _, job := range []string{
		"block_payment_matching",
		"mempool_zero_conf",
		"order_expiry",
		"channel_opening",
		"channel_watching",
	} {
		statusManager.RegisterJob(job)
	}
	return &InstrumentedEngine{
		IEngine:       base,
		statusManager: statusManager,
	}
}

func (ie *InstrumentedEngine) runJob(jobName string, fn func() error) error {
	ie.statusManager.StartJob(jobName)
	err := fn()
	ie.statusManager.CompleteJob(jobName, err)
	return err
}

func (ie *InstrumentedEngine) CheckNewBlocks(ctx context.Context) error {
	return ie.runJob("block_payment_matching", func() error {
		return ie.IEngine.CheckNewBlocks(ctx)
	})
}

func (ie *InstrumentedEngine) ProcessMempool(ctx context.Context) error {
	return ie.runJob("mempool_zero_conf", func() error {
		return ie.IEngine.ProcessMempool(ctx)
	})
}

func (ie *InstrumentedEngine) ExpireOrders(ctx context.Context) error {
	return ie.runJob("order_expiry", func() error {
		return ie.IEngine.ExpireOrders(ctx)
	})
}

func (ie *InstrumentedEngine) OpenChannels(ctx context.Context) error {
	return ie.runJob("channel_opening", func() error {
		return ie.IEngine.OpenChannels(ctx)
	})
}

func (ie *InstrumentedEngine) WatchChannels(ctx context.Context) error {
	return ie.runJob("channel_watching", func() error {
		return ie.IEngine.WatchChannels(ctx)
	})
}

// InstrumentedPublisher counts state transitions before delegating to the
// real event publisher.
type InstrumentedPublisher struct {
	wrapped events.IPublisher
	metrics *OrderMetrics
}

var _ events.IPublisher = (*InstrumentedPublisher)(nil)

func NewInstrumentedPublisher(wrapped events.IPublisher, metrics *OrderMetrics) *InstrumentedPublisher {
	return &InstrumentedPublisher{
		wrapped: wrapped,
		metrics: metrics,
	}
}

func (p *InstrumentedPublisher) PublishStateChange(orderID string, from, to model.OrderState, transition string) {
	p.metrics.RecordStateTransition(from.String(), to.String())
	p.wrapped.PublishStateChange(orderID, from, to, transition)
}
