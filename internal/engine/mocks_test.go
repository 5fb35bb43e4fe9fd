package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/alert"
	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/compliance"
	"github.com/blocktank/channel-backend/internal/events"
	"github.com/blocktank/channel-backend/internal/lnrpc"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
	"github.com/blocktank/channel-backend/internal/store"
	"github.com/blocktank/channel-backend/internal/store/order"
	"github.com/blocktank/channel-backend/internal/store/zeroconfcounter"
	"github.com/blocktank/channel-backend/internal/types/environments"
	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

type mockOrderStore struct {
	mu     sync.Mutex
	orders map[string]*model.Order
}

var _ order.IStore = (*mockOrderStore)(nil)

func newMockOrderStore(orders ...*model.Order) *mockOrderStore {
	s := &mockOrderStore{orders: map[string]*model.Order{}}
	for _, o := range orders {
		copied := *o
		s.orders[o.ID] = &copied
	}
	return s
}

func (s *mockOrderStore) get(id string) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	copied := *o
	return &copied
}

func (s *mockOrderStore) Create(_ *gorm.DB, o *model.Order) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *o
	s.orders[o.ID] = &copied
	return o, nil
}

func (s *mockOrderStore) GetByID(_ *gorm.DB, id string) (*model.Order, error) {
	o := s.get(id)
	if o == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (s *mockOrderStore) GetByInvoiceID(_ *gorm.DB, invoiceID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.LnInvoice.ID == invoiceID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *mockOrderStore) GetByRenewalInvoiceID(_ *gorm.DB, invoiceID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.RenewalQuote != nil && o.RenewalQuote.LnInvoice.ID == invoiceID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *mockOrderStore) List(_ *gorm.DB, filter order.ListFilter) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if filter.State != nil && o.State != *filter.State {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *mockOrderStore) ListPendingPayment(_ *gorm.DB, now time.Time, window time.Duration) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.State == model.OrderStateCreated && o.BtcAddress != "" && !o.OrderExpiryAt.After(now.Add(window)) {
			out = append(out, *o)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *mockOrderStore) ListOpenable(_ *gorm.DB, now time.Time, lookback time.Duration, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.State == model.OrderStateURISet && !o.CreatedAt.Before(now.Add(-lookback)) {
			out = append(out, *o)
		}
	}
	sortByCreated(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockOrderStore) ListWatchable(_ *gorm.DB, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		switch o.State {
		case model.OrderStateOpening, model.OrderStateOpen, model.OrderStateClosing:
			out = append(out, *o)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *mockOrderStore) ListExpiredOpen(_ *gorm.DB, now time.Time) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.State == model.OrderStateOpen && o.ChannelExpiryAt != nil && !o.ChannelExpiryAt.After(now) {
			out = append(out, *o)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *mockOrderStore) UpdateFields(_ *gorm.DB, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyFields(o, fields)
	return nil
}

func (s *mockOrderStore) UpdateFieldsFromState(_ *gorm.DB, id string, fromState model.OrderState, fields map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	if o.State != fromState {
		return false, nil
	}
	applyFields(o, fields)
	return true, nil
}

func (s *mockOrderStore) MarkExpired(_ *gorm.DB, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, o := range s.orders {
		if o.State == model.OrderStateCreated && !o.OrderExpiryAt.After(now) && len(o.OnchainPayments) > 0 {
			o.State = model.OrderStateExpired
			count++
		}
	}
	return count, nil
}

func sortByCreated(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

func applyFields(o *model.Order, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "state":
			o.State = value.(model.OrderState)
		case "onchain_payments":
			o.OnchainPayments = value.(model.OnchainPayments)
		case "amount_received":
			o.AmountReceived = value.(int64)
		case "zero_conf":
			o.ZeroConf = value.(bool)
		case "order_result":
			o.OrderResults = value.(model.OpenAttempts)
		case "channel_open_tx":
			o.ChannelOpenTx = value.(*model.ChannelTx)
		case "channel_close_tx":
			o.ChannelCloseTx = value.(*model.ChannelTx)
		case "lightning_channel_id":
			o.LightningChannelID = value.(string)
		case "channel_expiry_at":
			expiry := value.(time.Time)
			o.ChannelExpiryAt = &expiry
		case "channel_closed_early":
			o.ChannelClosedEarly = value.(bool)
		case "remote_node":
			o.RemoteNode = value.(model.RemoteNode)
		case "remote_node_src":
			o.RemoteNodeSrc = value.(string)
		case "private_channel":
			o.PrivateChannel = value.(bool)
		case "refund_tx":
			o.RefundTx = value.(string)
		case "refunded_at":
			refunded := value.(time.Time)
			o.RefundedAt = &refunded
		case "renewals":
			o.Renewals = value.(model.Renewals)
		case "renewal_quote":
			if value == nil {
				o.RenewalQuote = nil
			} else {
				o.RenewalQuote = value.(*model.Renewal)
			}
		case "updated_at":
			o.UpdatedAt = value.(time.Time)
		}
	}
}

type mockZeroConfStore struct {
	mu      sync.Mutex
	counter *model.ZeroConfCounter
	addErr  error
}

var _ zeroconfcounter.IStore = (*mockZeroConfStore)(nil)

func (s *mockZeroConfStore) GetCurrent(_ *gorm.DB) (*model.ZeroConfCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.counter
	return &copied, nil
}

func (s *mockZeroConfStore) Reset(_ *gorm.DB, height int64) (*model.ZeroConfCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter == nil || s.counter.BlockHeight != height {
		s.counter = &model.ZeroConfCounter{BlockHeight: height}
	}
	copied := *s.counter
	return &copied, nil
}

func (s *mockZeroConfStore) Add(_ *gorm.DB, height int64, amount int64, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	if s.counter != nil && s.counter.BlockHeight == height {
		s.counter.AmountProcessed += amount
		s.counter.OrdersProcessed += count
	}
	return nil
}

type mockLnRpc struct {
	addPeerFn     func(publicKey, socket string) error
	openChannelFn func(params lnrpc.OpenChannelParams) (*lnrpc.OpenChannelResult, error)
	closeFn       func(channelID string) (*lnrpc.CloseChannelResult, error)
	channels      []lnrpc.Channel
	closed        []lnrpc.ClosedChannel
	settleFn      func(invoiceID string) error
	cancelFn      func(invoiceID string) error
	createFn      func(amountSat int64, memo string) (*lnrpc.HodlInvoice, error)
	balanceFn     func() (int64, error)
	getInvoiceFn  func(invoiceID string) (*lnrpc.HodlInvoice, error)

	mu          sync.Mutex
	settledIDs  []string
	canceledIDs []string
}

var _ lnrpc.ILnRpc = (*mockLnRpc)(nil)

func (m *mockLnRpc) AddPeer(_ context.Context, publicKey, socket string) error {
	if m.addPeerFn != nil {
		return m.addPeerFn(publicKey, socket)
	}
	return nil
}

func (m *mockLnRpc) OpenChannel(_ context.Context, params lnrpc.OpenChannelParams) (*lnrpc.OpenChannelResult, error) {
	if m.openChannelFn != nil {
		return m.openChannelFn(params)
	}
	return &lnrpc.OpenChannelResult{TransactionID: "funding-tx"}, nil
}

func (m *mockLnRpc) CloseChannel(_ context.Context, channelID string) (*lnrpc.CloseChannelResult, error) {
	if m.closeFn != nil {
		return m.closeFn(channelID)
	}
	return &lnrpc.CloseChannelResult{TransactionID: "close-tx"}, nil
}

func (m *mockLnRpc) ListChannels(_ context.Context) ([]lnrpc.Channel, error) {
	return m.channels, nil
}

func (m *mockLnRpc) ListClosedChannels(_ context.Context) ([]lnrpc.ClosedChannel, error) {
	return m.closed, nil
}

func (m *mockLnRpc) GetInfo(_ context.Context) (*lnrpc.NodeInfo, error) {
	return &lnrpc.NodeInfo{PublicKey: "self"}, nil
}

func (m *mockLnRpc) GetOnChainBalance(_ context.Context) (int64, error) {
	if m.balanceFn != nil {
		return m.balanceFn()
	}
	return 100_000_000, nil
}

func (m *mockLnRpc) CreateHodlInvoice(_ context.Context, amountSat int64, memo string) (*lnrpc.HodlInvoice, error) {
	if m.createFn != nil {
		return m.createFn(amountSat, memo)
	}
	return &lnrpc.HodlInvoice{ID: "invoice-1", Request: "lnbc1", AmountSat: amountSat}, nil
}

func (m *mockLnRpc) SettleHodlInvoice(_ context.Context, invoiceID string) error {
	if m.settleFn != nil {
		if err := m.settleFn(invoiceID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.settledIDs = append(m.settledIDs, invoiceID)
	m.mu.Unlock()
	return nil
}

func (m *mockLnRpc) CancelHodlInvoice(_ context.Context, invoiceID string) error {
	if m.cancelFn != nil {
		if err := m.cancelFn(invoiceID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.canceledIDs = append(m.canceledIDs, invoiceID)
	m.mu.Unlock()
	return nil
}

func (m *mockLnRpc) GetInvoice(_ context.Context, invoiceID string) (*lnrpc.HodlInvoice, error) {
	if m.getInvoiceFn != nil {
		return m.getInvoiceFn(invoiceID)
	}
	return &lnrpc.HodlInvoice{ID: invoiceID, IsHeld: true}, nil
}

func (m *mockLnRpc) SubscribeInvoiceEvents(ctx context.Context) (<-chan lnrpc.InvoiceEvent, error) {
	ch := make(chan lnrpc.InvoiceEvent)
	close(ch)
	return ch, nil
}

func (m *mockLnRpc) SubscribeChannelEvents(ctx context.Context) (<-chan lnrpc.ChannelEvent, error) {
	ch := make(chan lnrpc.ChannelEvent)
	close(ch)
	return ch, nil
}

type mockBtcRpc struct {
	bestHeight   int64
	heightTxs    map[int64][]btcrpc.ChainTransaction
	mempoolTxs   []btcrpc.ChainTransaction
	parsedTxs    map[string][]btcrpc.ChainTransaction
	droppedTxs   map[string]bool
	feeThreshold *btcrpc.FeeThreshold
}

var _ btcrpc.IBtcRpc = (*mockBtcRpc)(nil)

func (m *mockBtcRpc) GetBestHeight(_ context.Context) (int64, error) {
	return m.bestHeight, nil
}

func (m *mockBtcRpc) GetHeightTransactions(_ context.Context, height int64, addresses []string) ([]btcrpc.ChainTransaction, error) {
	return m.heightTxs[height], nil
}

func (m *mockBtcRpc) GetMempoolTransactions(_ context.Context, addresses []string) ([]btcrpc.ChainTransaction, error) {
	return m.mempoolTxs, nil
}

func (m *mockBtcRpc) GetTransaction(_ context.Context, hash string) (*btcrpc.ChainTransaction, error) {
	if m.droppedTxs[hash] {
		return nil, errors.New("transaction not found")
	}
	return &btcrpc.ChainTransaction{Hash: hash}, nil
}

func (m *mockBtcRpc) ParseTransaction(_ context.Context, txid string) ([]btcrpc.ChainTransaction, error) {
	return m.parsedTxs[txid], nil
}

func (m *mockBtcRpc) GetNewAddress(_ context.Context, tag string) (string, error) {
	return "bc1qnewaddress", nil
}

func (m *mockBtcRpc) GetFeeThreshold(_ context.Context) (*btcrpc.FeeThreshold, error) {
	if m.feeThreshold != nil {
		return m.feeThreshold, nil
	}
	return &btcrpc.FeeThreshold{MinFeeSatVByte: 5}, nil
}

type mockCompliance struct {
	blacklisted map[string]bool
}

var _ compliance.ICompliance = (*mockCompliance)(nil)

func (m *mockCompliance) IsAddressBlacklisted(_ context.Context, addresses []string) (*compliance.BlacklistResult, error) {
	for _, addr := range addresses {
		if m.blacklisted[addr] {
			return &compliance.BlacklistResult{Blacklisted: true, Addresses: []string{addr}}, nil
		}
	}
	return &compliance.BlacklistResult{}, nil
}

type recordingAlert struct {
	mu       sync.Mutex
	messages []string
}

var _ alert.IAlert = (*recordingAlert)(nil)

func (a *recordingAlert) Notify(level alert.Level, tag, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, string(level)+"/"+tag+": "+message)
}

func (a *recordingAlert) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

type testEnv struct {
	engine     *Engine
	orders     *mockOrderStore
	counters   *mockZeroConfStore
	lnRpc      *mockLnRpc
	btcRpc     *mockBtcRpc
	compliance *mockCompliance
	alerts     *recordingAlert
	cfg        *config.AppConfig
}

func newTestEnv(orders ...*model.Order) *testEnv {
	env := &testEnv{
		orders:     newMockOrderStore(orders...),
		counters:   &mockZeroConfStore{},
		lnRpc:      &mockLnRpc{},
		btcRpc:     &mockBtcRpc{heightTxs: map[int64][]btcrpc.ChainTransaction{}, parsedTxs: map[string][]btcrpc.ChainTransaction{}},
		compliance: &mockCompliance{blacklisted: map[string]bool{}},
		alerts:     &recordingAlert{},
	}

	env.cfg = &config.AppConfig{
		Environment: environments.Test,
		Bitcoin:     config.BitcoinConfig{Network: "regtest"},
		Lightning:   config.LightningConfig{MinWalletBuffer: 1_000_000},
		Order: config.OrderConfig{
			MinConfirmations:       3,
			PaymentWindow:          3 * time.Hour,
			MaxChannelOpenAttempts: 3,
			OpenLookback:           48 * time.Hour,
			OpenBatchSize:          100,
			ThrottleMaxAttempts:    10,
			ThrottleWindow:         60 * time.Second,
			CloseGraceDelay:        20 * time.Millisecond,
		},
		ZeroConf: config.ZeroConfConfig{
			MaxOrderAmount:   500_000,
			MaxPaymentAmount: 500_000,
			MaxTotalAmount:   2_000_000,
			MaxCount:         6,
		},
	}

	l := logger.New(environments.Test)
	st := &store.Store{Order: env.orders, ZeroConfCounter: env.counters}
	sm := statemachine.New(nil, st, l, events.NoopPublisher{})
	env.engine = New(nil, st, env.cfg, l, sm, env.lnRpc, env.btcRpc, env.compliance, env.alerts)
	env.engine.inTx = func(fn func(tx *gorm.DB) error) error { return fn(nil) }
	return env
}
