package btcrpc

import "context"

type IBtcRpc interface {
	// GetBestHeight returns the current chain tip height.
	GetBestHeight(ctx context.Context) (int64, error)

	// GetHeightTransactions returns the transactions at height paying any of
	// the given addresses.
	GetHeightTransactions(ctx context.Context, height int64, addresses []string) ([]ChainTransaction, error)

	// GetMempoolTransactions returns unconfirmed transactions paying any of the
	// given addresses. ZeroConf is set when the transaction's fee rate clears
	// the worker's zero-conf threshold.
	GetMempoolTransactions(ctx context.Context, addresses []string) ([]ChainTransaction, error)

	GetTransaction(ctx context.Context, hash string) (*ChainTransaction, error)

	// ParseTransaction resolves a raw txid into the per-output payment records
	// the matching pipeline consumes.
	ParseTransaction(ctx context.Context, txid string) ([]ChainTransaction, error)

	GetNewAddress(ctx context.Context, tag string) (string, error)

	// GetFeeThreshold returns the minimum fee rate currently required for a
	// mempool payment to qualify for zero-conf acceptance.
	GetFeeThreshold(ctx context.Context) (*FeeThreshold, error)
}
