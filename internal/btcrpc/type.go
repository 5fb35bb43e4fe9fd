package btcrpc

import "time"

// ChainTransaction is one payment output as the Bitcoin worker reports it.
// Height is nil for mempool transactions.
type ChainTransaction struct {
	Hash      string `json:"hash"`
	To        string `json:"to"`
	From      string `json:"from"`
	AmountSat int64  `json:"amount_sat"`
	Height    *int64 `json:"height,omitempty"`
	ZeroConf  bool   `json:"zero_conf"`
}

type FeeThreshold struct {
	MinFeeSatVByte float64   `json:"min_fee"`
	Expiry         time.Time `json:"min_fee_expiry"`
}
