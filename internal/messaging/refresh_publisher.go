package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RefreshPublisher отправляет запросы на обновление всем экземплярам сервиса.
type RefreshPublisher struct {
	ch           *amqp091.Channel
	logger       *zap.Logger
	exchangeName string
}

// NewRefreshPublisher открывает канал и объявляет exchange.
func NewRefreshPublisher(conn *amqp091.Connection, exchangeName string, logger *zap.Logger) (*RefreshPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declareRefreshExchange(ch, exchangeName); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &RefreshPublisher{
		ch:           ch,
		logger:       logger.Named("RefreshPublisher"),
		exchangeName: exchangeName,
	}, nil
}

// Publish публикует запрос на обновление.
func (p *RefreshPublisher) Publish(ctx context.Context, payload RefreshPayload) error {
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh payload: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchangeName,
		"", // routing key (не используется для fanout)
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   payload.RequestedAt,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish refresh request", zap.Error(err))
		return fmt.Errorf("failed to publish refresh request: %w", err)
	}

	p.logger.Debug("Refresh request published", zap.String("reason", payload.Reason))
	return nil
}

// Close закрывает канал RabbitMQ.
func (p *RefreshPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
