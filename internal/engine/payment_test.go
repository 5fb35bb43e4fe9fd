package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blocktank/channel-backend/internal/btcrpc"
	"github.com/blocktank/channel-backend/internal/model"
)

// Valid base58 testnet addresses, also decodable under regtest params.
const (
	testAddressA = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"
	testAddressB = "msj42CCGruhRsFrGATiUuh25dtxYtnpbTx"
)

var testTxID = strings.Repeat("ab", 32)

func pendingOrder(id, address string, total int64) *model.Order {
	return &model.Order{
		ID:            id,
		State:         model.OrderStateCreated,
		TotalAmount:   total,
		BtcAddress:    address,
		LnInvoice:     model.LnInvoice{ID: "invoice-" + id, AmountSat: total},
		OrderExpiryAt: time.Now().Add(time.Hour),
		CreatedAt:     time.Now(),
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestCheckNewBlocksConfirmsPayment(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.bestHeight = 100
	env.btcRpc.heightTxs[100] = []btcrpc.ChainTransaction{
		{Hash: "tx-1", To: testAddressA, From: "sender", AmountSat: 100_000, Height: int64Ptr(100)},
	}

	// Block 100: payment recorded but not deep enough yet.
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order := env.orders.get("order-1")
	require.Equal(t, model.OrderStateCreated, order.State)
	require.Len(t, order.OnchainPayments, 1)
	require.False(t, order.OnchainPayments[0].Confirmed)

	// Block 102: two blocks on top is still one short of the depth rule.
	env.btcRpc.bestHeight = 102
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order = env.orders.get("order-1")
	require.Equal(t, model.OrderStateCreated, order.State)
	require.False(t, order.OnchainPayments[0].Confirmed)

	// Block 103 reaches the confirmation depth.
	env.btcRpc.bestHeight = 103
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order = env.orders.get("order-1")
	require.Equal(t, model.OrderStatePaid, order.State)
	require.Equal(t, int64(100_000), order.AmountReceived)
	require.True(t, order.OnchainPayments[0].Confirmed)
}

func TestCheckNewBlocksConfirmsAfterExpiryLapses(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.bestHeight = 100
	env.btcRpc.heightTxs[100] = []btcrpc.ChainTransaction{
		{Hash: "tx-1", To: testAddressA, From: "sender", AmountSat: 100_000, Height: int64Ptr(100)},
	}
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	// The payment window lapses while the payment waits for depth. The order
	// must keep settling; only ExpireOrders decides expiry.
	env.orders.mu.Lock()
	env.orders.orders["order-1"].OrderExpiryAt = time.Now().Add(-time.Minute)
	env.orders.mu.Unlock()

	env.btcRpc.bestHeight = 103
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order := env.orders.get("order-1")
	require.Equal(t, model.OrderStatePaid, order.State)
	require.True(t, order.OnchainPayments[0].Confirmed)
}

func TestCheckNewBlocksSkipsReorgedPayment(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.bestHeight = 100
	env.btcRpc.heightTxs[100] = []btcrpc.ChainTransaction{
		{Hash: "tx-1", To: testAddressA, From: "sender", AmountSat: 100_000, Height: int64Ptr(100)},
	}
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	// The transaction drops out of the chain before the depth is reached.
	env.btcRpc.droppedTxs = map[string]bool{"tx-1": true}
	env.btcRpc.bestHeight = 103
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order := env.orders.get("order-1")
	require.Equal(t, model.OrderStateCreated, order.State)
	require.False(t, order.OnchainPayments[0].Confirmed)
}

func TestCheckNewBlocksDeduplicatesByHash(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	tx := btcrpc.ChainTransaction{Hash: "tx-1", To: testAddressA, From: "sender", AmountSat: 100_000, Height: int64Ptr(100)}
	env.btcRpc.bestHeight = 100
	env.btcRpc.heightTxs[100] = []btcrpc.ChainTransaction{tx}
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	// The same transaction shows up again in the next block's scan.
	env.btcRpc.bestHeight = 101
	env.btcRpc.heightTxs[101] = []btcrpc.ChainTransaction{tx}
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order := env.orders.get("order-1")
	require.Len(t, order.OnchainPayments, 1)
}

func TestCheckNewBlocksPartialPaymentStaysCreated(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.bestHeight = 100
	env.btcRpc.heightTxs[100] = []btcrpc.ChainTransaction{
		{Hash: "tx-1", To: testAddressA, From: "sender", AmountSat: 40_000, Height: int64Ptr(100)},
	}
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	env.btcRpc.bestHeight = 103
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order := env.orders.get("order-1")
	require.Equal(t, model.OrderStateCreated, order.State)
	require.True(t, order.OnchainPayments[0].Confirmed)
	require.Equal(t, int64(40_000), order.ConfirmedAmount())
}

func TestCheckNewBlocksSumsMultiplePayments(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.bestHeight = 100
	env.btcRpc.heightTxs[100] = []btcrpc.ChainTransaction{
		{Hash: "tx-1", To: testAddressA, From: "sender", AmountSat: 40_000, Height: int64Ptr(100)},
		{Hash: "tx-2", To: testAddressA, From: "sender", AmountSat: 60_000, Height: int64Ptr(100)},
	}
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	env.btcRpc.bestHeight = 103
	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order := env.orders.get("order-1")
	require.Equal(t, model.OrderStatePaid, order.State)
	require.Equal(t, int64(100_000), order.AmountReceived)
}

func TestCheckNewBlocksRejectsBlacklistedSender(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.compliance.blacklisted["dirty-sender"] = true
	env.btcRpc.bestHeight = 100
	env.btcRpc.heightTxs[100] = []btcrpc.ChainTransaction{
		{Hash: "tx-1", To: testAddressA, From: "dirty-sender", AmountSat: 100_000, Height: int64Ptr(100)},
	}

	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	order := env.orders.get("order-1")
	require.Equal(t, model.OrderStateRejected, order.State)
	require.Empty(t, order.OnchainPayments)
	require.Equal(t, 1, env.alerts.count())
}

func TestCheckNewBlocksSkipsInvalidAddress(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", "not-an-address", 100_000))
	env.btcRpc.bestHeight = 100

	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))
	require.Equal(t, model.OrderStateCreated, env.orders.get("order-1").State)
}

func TestCheckNewBlocksResetsZeroConfCounter(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.counters.counter = &model.ZeroConfCounter{BlockHeight: 99, AmountProcessed: 5_000}
	env.btcRpc.bestHeight = 100

	require.NoError(t, env.engine.CheckNewBlocks(context.Background()))

	counter, err := env.counters.GetCurrent(nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), counter.BlockHeight)
	require.Equal(t, int64(0), counter.AmountProcessed)
}

func TestManualConfirmRejectsInvalidTxID(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))

	_, err := env.engine.ManualConfirm(context.Background(), "order-1", "not-a-txid")
	require.Error(t, err)
}

func TestManualConfirmRequiresCreatedState(t *testing.T) {
	order := pendingOrder("order-1", testAddressA, 100_000)
	order.State = model.OrderStatePaid
	env := newTestEnv(order)

	_, err := env.engine.ManualConfirm(context.Background(), "order-1", testTxID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not awaiting payment")
}

func TestManualConfirmPaysOrder(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.parsedTxs[testTxID] = []btcrpc.ChainTransaction{
		{Hash: testTxID, To: testAddressA, From: "sender", AmountSat: 100_000},
	}

	updated, err := env.engine.ManualConfirm(context.Background(), "order-1", testTxID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatePaid, updated.State)
	require.Equal(t, int64(100_000), updated.AmountReceived)
	require.Len(t, updated.OnchainPayments, 1)
	require.True(t, updated.OnchainPayments[0].Confirmed)
	require.Equal(t, HeightConfirmedNow, *updated.OnchainPayments[0].Height)
}

func TestManualConfirmFlipsRecordedPayment(t *testing.T) {
	order := pendingOrder("order-1", testAddressA, 100_000)
	order.OnchainPayments = model.OnchainPayments{
		{Hash: testTxID, To: testAddressA, From: "sender", AmountSat: 100_000, Height: int64Ptr(100)},
	}
	env := newTestEnv(order)
	env.btcRpc.parsedTxs[testTxID] = []btcrpc.ChainTransaction{
		{Hash: testTxID, To: testAddressA, From: "sender", AmountSat: 100_000},
	}

	updated, err := env.engine.ManualConfirm(context.Background(), "order-1", testTxID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatePaid, updated.State)
	require.Len(t, updated.OnchainPayments, 1)
	require.True(t, updated.OnchainPayments[0].Confirmed)
}

func TestManualConfirmPartialPayment(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.parsedTxs[testTxID] = []btcrpc.ChainTransaction{
		{Hash: testTxID, To: testAddressA, From: "sender", AmountSat: 30_000},
	}

	updated, err := env.engine.ManualConfirm(context.Background(), "order-1", testTxID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStateCreated, updated.State)
	require.Equal(t, int64(30_000), updated.ConfirmedAmount())
}

func TestManualConfirmWrongRecipient(t *testing.T) {
	env := newTestEnv(pendingOrder("order-1", testAddressA, 100_000))
	env.btcRpc.parsedTxs[testTxID] = []btcrpc.ChainTransaction{
		{Hash: testTxID, To: testAddressB, From: "sender", AmountSat: 100_000},
	}

	_, err := env.engine.ManualConfirm(context.Background(), "order-1", testTxID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pays no output")
}
