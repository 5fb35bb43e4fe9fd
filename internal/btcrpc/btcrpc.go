package btcrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

// BtcRpc talks to the Bitcoin block/mempool worker over its method-keyed JSON
// API. Single attempt per call; the polling loops supply the retry cadence.
type BtcRpc struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) IBtcRpc {
	return &BtcRpc{
		baseURL: appConfig.Bitcoin.WorkerURL,
		client: &http.Client{
			Timeout: appConfig.Bitcoin.Timeout,
		},
		logger: logger,
	}
}

func (b *BtcRpc) call(ctx context.Context, method string, args interface{}, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"method": method,
		"args":   args,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "failed to create %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "btc worker call failed: %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s response", method)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("btc worker %s: status code %d: %s", method, resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Error string          `json:"error,omitempty"`
		Data  json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", method)
	}
	if rpcResp.Error != "" {
		return errors.New(rpcResp.Error)
	}
	if out != nil && len(rpcResp.Data) > 0 {
		if err := json.Unmarshal(rpcResp.Data, out); err != nil {
			return errors.Wrapf(err, "failed to decode %s payload", method)
		}
	}
	return nil
}

func (b *BtcRpc) GetBestHeight(ctx context.Context) (int64, error) {
	var result struct {
		Height int64 `json:"height"`
	}
	if err := b.call(ctx, "getBestHeight", nil, &result); err != nil {
		return 0, err
	}
	return result.Height, nil
}

func (b *BtcRpc) GetHeightTransactions(ctx context.Context, height int64, addresses []string) ([]ChainTransaction, error) {
	var txs []ChainTransaction
	err := b.call(ctx, "getHeightTransactions", map[string]interface{}{
		"height":  height,
		"address": addresses,
	}, &txs)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (b *BtcRpc) GetMempoolTransactions(ctx context.Context, addresses []string) ([]ChainTransaction, error) {
	var txs []ChainTransaction
	err := b.call(ctx, "getMempoolTx", map[string]interface{}{
		"address": addresses,
	}, &txs)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (b *BtcRpc) GetTransaction(ctx context.Context, hash string) (*ChainTransaction, error) {
	var tx ChainTransaction
	if err := b.call(ctx, "getTransaction", map[string]string{"hash": hash}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (b *BtcRpc) ParseTransaction(ctx context.Context, txid string) ([]ChainTransaction, error) {
	var txs []ChainTransaction
	if err := b.call(ctx, "parseTransaction", map[string]string{"id": txid}, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (b *BtcRpc) GetNewAddress(ctx context.Context, tag string) (string, error) {
	var result struct {
		Address string `json:"address"`
	}
	if err := b.call(ctx, "getNewAddress", map[string]string{"tag": tag}, &result); err != nil {
		return "", err
	}
	return result.Address, nil
}

func (b *BtcRpc) GetFeeThreshold(ctx context.Context) (*FeeThreshold, error) {
	var threshold FeeThreshold
	if err := b.call(ctx, "getCurrentFeeThreshold", nil, &threshold); err != nil {
		return nil, err
	}
	return &threshold, nil
}
