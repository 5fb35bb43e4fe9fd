package lnrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

// LnRpc talks to the Lightning node worker over its method-keyed JSON API.
// Calls are single-attempt with a timeout; retry policy belongs to callers.
type LnRpc struct {
	baseURL string
	client  *http.Client
	// pollClient carries no timeout so the worker can hold event feed
	// requests open; cancellation comes from the request context.
	pollClient *http.Client
	logger     *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) ILnRpc {
	return &LnRpc{
		baseURL: appConfig.Lightning.WorkerURL,
		client: &http.Client{
			Timeout: appConfig.Lightning.Timeout,
		},
		pollClient: &http.Client{},
		logger:     logger,
	}
}

type rpcRequest struct {
	Method string      `json:"method"`
	Args   interface{} `json:"args,omitempty"`
}

type rpcResponse struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (l *LnRpc) call(ctx context.Context, method string, args interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{Method: method, Args: args})
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "failed to create %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "ln worker call failed: %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s response", method)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("ln worker %s: status code %d: %s", method, resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
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

func (l *LnRpc) AddPeer(ctx context.Context, publicKey, socket string) error {
	return l.call(ctx, "addPeer", map[string]string{
		"public_key": publicKey,
		"socket":     socket,
	}, nil)
}

func (l *LnRpc) OpenChannel(ctx context.Context, params OpenChannelParams) (*OpenChannelResult, error) {
	var result OpenChannelResult
	if err := l.call(ctx, "openChannel", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (l *LnRpc) CloseChannel(ctx context.Context, channelID string) (*CloseChannelResult, error) {
	var result CloseChannelResult
	if err := l.call(ctx, "closeChannel", map[string]string{"id": channelID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (l *LnRpc) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	if err := l.call(ctx, "listChannels", nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (l *LnRpc) ListClosedChannels(ctx context.Context) ([]ClosedChannel, error) {
	var channels []ClosedChannel
	if err := l.call(ctx, "listClosedChannels", nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (l *LnRpc) GetInfo(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := l.call(ctx, "getInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (l *LnRpc) GetOnChainBalance(ctx context.Context) (int64, error) {
	var balance struct {
		TotalSat int64 `json:"total_sat"`
	}
	if err := l.call(ctx, "getOnChainBalance", nil, &balance); err != nil {
		return 0, err
	}
	return balance.TotalSat, nil
}

func (l *LnRpc) CreateHodlInvoice(ctx context.Context, amountSat int64, memo string) (*HodlInvoice, error) {
	var invoice HodlInvoice
	err := l.call(ctx, "createHodlInvoice", map[string]interface{}{
		"amount_sat": amountSat,
		"memo":       memo,
	}, &invoice)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (l *LnRpc) SettleHodlInvoice(ctx context.Context, invoiceID string) error {
	return l.call(ctx, "settleHodlInvoice", map[string]string{"id": invoiceID}, nil)
}

func (l *LnRpc) CancelHodlInvoice(ctx context.Context, invoiceID string) error {
	return l.call(ctx, "cancelHodlInvoice", map[string]string{"id": invoiceID}, nil)
}

func (l *LnRpc) GetInvoice(ctx context.Context, invoiceID string) (*HodlInvoice, error) {
	var invoice HodlInvoice
	if err := l.call(ctx, "getInvoice", map[string]string{"id": invoiceID}, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (l *LnRpc) SubscribeInvoiceEvents(ctx context.Context) (<-chan InvoiceEvent, error) {
	out := make(chan InvoiceEvent)
	go pollEvents(ctx, l, "invoices", out, l.logger)
	return out, nil
}

func (l *LnRpc) SubscribeChannelEvents(ctx context.Context) (<-chan ChannelEvent, error) {
	out := make(chan ChannelEvent)
	go pollEvents(ctx, l, "channels", out, l.logger)
	return out, nil
}

const eventPollInterval = 2 * time.Second

// pollEvents long-polls the worker's event feed and forwards every event. The
// worker holds the request open until events are available or its own timeout
// elapses, so an idle feed costs one request per timeout.
func pollEvents[T any](ctx context.Context, l *LnRpc, feed string, out chan<- T, log *logger.Logger) {
	defer close(out)
	cursor := ""
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, next, err := fetchEvents[T](ctx, l, feed, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error(fmt.Sprintf("[SubscribeEvents] %s feed failed", feed), map[string]string{
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(eventPollInterval):
			}
			continue
		}
		cursor = next
		for _, ev := range events {
			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}
}

func fetchEvents[T any](ctx context.Context, l *LnRpc, feed, cursor string) ([]T, string, error) {
	url := fmt.Sprintf("%s/events/%s?cursor=%s", l.baseURL, feed, cursor)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, cursor, errors.Wrap(err, "failed to create event request")
	}

	resp, err := l.pollClient.Do(req)
	if err != nil {
		return nil, cursor, errors.Wrap(err, "event feed request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, cursor, errors.Errorf("event feed status code %d", resp.StatusCode)
	}

	var payload struct {
		Events []T    `json:"events"`
		Cursor string `json:"cursor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, cursor, errors.Wrap(err, "failed to decode event feed")
	}
	return payload.Events, payload.Cursor, nil
}
