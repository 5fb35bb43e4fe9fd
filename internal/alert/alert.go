package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

type Level string

const (
	LevelInfo   Level = "info"
	LevelNotice Level = "notice"
	LevelError  Level = "error"
)

type IAlert interface {
	// Notify delivers an operator alert. Fire-and-forget: delivery failures are
	// logged and never surface to the caller.
	Notify(level Level, tag, message string)
}

// Alert posts operator notifications to a webhook (Slack-compatible payload).
type Alert struct {
	webhookURL string
	client     *http.Client
	logger     *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) IAlert {
	return &Alert{
		webhookURL: appConfig.Alert.WebhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (a *Alert) Notify(level Level, tag, message string) {
	if a.webhookURL == "" {
		return
	}
	go a.send(level, tag, message)
}

func (a *Alert) send(level Level, tag, message string) {
	payload, err := json.Marshal(map[string]string{
		"level":   string(level),
		"tag":     tag,
		"message": message,
	})
	if err != nil {
		a.logger.Error("[Alert] failed to encode notification", map[string]string{
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		a.logger.Error("[Alert] failed to create notification request", map[string]string{
			"error": err.Error(),
		})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("[Alert] failed to deliver notification", map[string]string{
			"tag":   tag,
			"error": err.Error(),
		})
		return
	}
	resp.Body.Close()
}
