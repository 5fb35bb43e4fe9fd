package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/utils/config"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

// OrderEvent is published whenever an order changes state.
type OrderEvent struct {
	OrderID    string    `json:"order_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Transition string    `json:"transition"`
	Ts         time.Time `json:"ts"`
}

type IPublisher interface {
	// PublishStateChange emits an order state-change event. Best effort: a
	// broker failure is logged, never returned to the transition path.
	PublishStateChange(orderID string, from, to model.OrderState, transition string)
}

type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *logger.Logger
}

// NoopPublisher is used when event publishing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishStateChange(string, model.OrderState, model.OrderState, string) {}

func New(appConfig *config.AppConfig, logger *logger.Logger) IPublisher {
	if !appConfig.Kafka.Enabled || appConfig.Kafka.Brokers == "" {
		return NoopPublisher{}
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(strings.Split(appConfig.Kafka.Brokers, ",")...),
			Balancer: &kafka.LeastBytes{},
		},
		topic:  appConfig.Kafka.Topic,
		logger: logger,
	}
}

func (p *KafkaPublisher) PublishStateChange(orderID string, from, to model.OrderState, transition string) {
	event := OrderEvent{
		OrderID:    orderID,
		FromState:  from.String(),
		ToState:    to.String(),
		Transition: transition,
		Ts:         time.Now(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("[PublishStateChange] failed to marshal event", map[string]string{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: value,
		Time:  event.Ts,
		Topic: p.topic,
	})
	if err != nil {
		p.logger.Error("[PublishStateChange] failed to publish event", map[string]string{
			"order_id": orderID,
			"error":    err.Error(),
		})
	}
}
