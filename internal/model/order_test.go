package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnchainPaymentsContainsHash(t *testing.T) {
	payments := OnchainPayments{
		{Hash: "tx-1", AmountSat: 10_000},
		{Hash: "tx-2", AmountSat: 20_000},
	}

	assert.True(t, payments.ContainsHash("tx-1"))
	assert.False(t, payments.ContainsHash("tx-3"))
	assert.False(t, OnchainPayments(nil).ContainsHash("tx-1"))
}

func TestOrderAmounts(t *testing.T) {
	order := &Order{
		TotalAmount: 100_000,
		OnchainPayments: OnchainPayments{
			{Hash: "tx-1", AmountSat: 40_000, Confirmed: true},
			{Hash: "tx-2", AmountSat: 30_000},
			{Hash: "tx-3", AmountSat: 30_000, Confirmed: true, ZeroConf: true},
		},
	}

	assert.Equal(t, int64(70_000), order.ConfirmedAmount())
	assert.Equal(t, int64(100_000), order.PaymentTotal())
}

func TestRenewalsRoundTrip(t *testing.T) {
	renewals := Renewals{
		{LnInvoice: LnInvoice{ID: "renewal-1", AmountSat: 40_000}},
	}

	value, err := renewals.Value()
	require.NoError(t, err)

	var decoded Renewals
	require.NoError(t, decoded.Scan(value))
	require.Len(t, decoded, 1)
	assert.Equal(t, "renewal-1", decoded[0].LnInvoice.ID)
}
