package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

type BlacklistResult struct {
	Blacklisted bool     `json:"blacklisted"`
	Addresses   []string `json:"address,omitempty"`
}

type ICompliance interface {
	// IsAddressBlacklisted screens payment sender addresses. With screening
	// disabled it reports every address as clean.
	IsAddressBlacklisted(ctx context.Context, addresses []string) (*BlacklistResult, error)
}

// Compliance calls the AML screening worker. The check is a pluggable policy:
// it can be switched off by configuration without touching any caller.
type Compliance struct {
	baseURL string
	enabled bool
	client  *http.Client
	logger  *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) ICompliance {
	return &Compliance{
		baseURL: appConfig.Compliance.WorkerURL,
		enabled: appConfig.Compliance.Enabled,
		client: &http.Client{
			Timeout: appConfig.Compliance.Timeout,
		},
		logger: logger,
	}
}

func (c *Compliance) IsAddressBlacklisted(ctx context.Context, addresses []string) (*BlacklistResult, error) {
	if !c.enabled {
		return &BlacklistResult{Blacklisted: false}, nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"method": "isAddressBlacklisted",
		"args":   map[string]interface{}{"address": addresses},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode blacklist request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blacklist request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "compliance worker call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("compliance worker: status code %d", resp.StatusCode)
	}

	var result BlacklistResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode blacklist response")
	}
	return &result, nil
}
