package server

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/auth"
	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/compliance"
	"github.com/blocktank/channel-backend/internal/engine"
	"github.com/blocktank/channel-backend/internal/events"
	"github.com/blocktank/channel-backend/internal/handler"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/monitoring"
	"github.com/blocktank/channel-backend/internal/statemachine"
	"github.com/blocktank/channel-backend/internal/store"
	pgstore "github.com/blocktank/channel-backend/internal/store/postgres"
	"github.com/blocktank/channel-backend/internal/transport/http"
	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

func Init() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	db := pgstore.New(appConfig, logger)
	s := store.New()

	registry := prometheus.NewRegistry()
	jobMetrics := monitoring.NewBackgroundJobMetrics()
	jobMetrics.MustRegister(registry)
	apiMetrics := monitoring.NewExternalAPIMetrics()
	apiMetrics.MustRegister(registry)
	orderMetrics := monitoring.NewOrderMetrics()
	orderMetrics.MustRegister(registry)
	statusManager := monitoring.NewJobStatusManager(logger, jobMetrics)

	lnRpc := monitoring.NewCircuitBreakerLnRpc(
		lnrpc.New(appConfig, logger),
		monitoring.DefaultLnRpcBreakerConfig,
		apiMetrics,
		logger,
	)
	btcRpc := btcrpc.New(appConfig, logger)
	complianceSvc := compliance.New(appConfig, logger)
	alertSvc := alert.New(appConfig, logger)

	publisher := monitoring.NewInstrumentedPublisher(events.New(appConfig, logger), orderMetrics)
	sm := statemachine.New(db, s, logger, publisher)

	eng := monitoring.NewInstrumentedEngine(
		engine.New(db, s, appConfig, logger, sm, lnRpc, btcRpc, complianceSvc, alertSvc),
		statusManager,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event subscription loops: invoice settlement and channel-state changes.
	go eng.WatchInvoices(ctx)
	go eng.WatchChannelEvents(ctx)

	c := cron.New()
	c.AddFunc("@every 30s", guarded(func() { _ = eng.CheckNewBlocks(ctx) }))
	c.AddFunc("@every 30s", guarded(func() { _ = eng.ProcessMempool(ctx) }))
	c.AddFunc("@every 1m", guarded(func() { _ = eng.OpenChannels(ctx) }))
	c.AddFunc("@every 1m", guarded(func() { _ = eng.WatchChannels(ctx) }))
	c.AddFunc("@every 5m", guarded(func() { _ = eng.ExpireOrders(ctx) }))
	c.Start()
	defer c.Stop()

	authSvc := auth.NewService(appConfig)
	h := handler.New(appConfig, logger, eng, s, db, lnRpc, btcRpc, authSvc, statusManager, registry)

	httpServer := http.NewHttpServer(appConfig, logger, h, authSvc)

	httpServer.Run()
}

// guarded skips a tick entirely while the previous one is still running.
func guarded(run func()) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			return
		}
		defer running.Store(false)
		run()
	}
}
