package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Refresher запускает цикл обновления планет в фоне.
type Refresher interface {
	TriggerRefresh()
}

// RefreshConsumer слушает fanout exchange и на каждое сообщение запускает обновление.
type RefreshConsumer struct {
	conn         *amqp091.Connection
	ch           *amqp091.Channel
	refresher    Refresher
	logger       *zap.Logger
	exchangeName string
	queueName    string
	consumerTag  string
	done         chan struct{}
	stopOnce     sync.Once
}

// NewRefreshConsumer объявляет exchange и временную очередь, привязанную к нему.
func NewRefreshConsumer(conn *amqp091.Connection, exchangeName string, refresher Refresher, logger *zap.Logger) (*RefreshConsumer, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection is nil")
	}
	if refresher == nil {
		return nil, fmt.Errorf("refresher is nil")
	}

	consumerTag := fmt.Sprintf("story_refresh_consumer_%d", time.Now().UnixNano())
	consumer := &RefreshConsumer{
		conn:         conn,
		refresher:    refresher,
		logger:       logger.Named("RefreshConsumer").With(zap.String("consumerTag", consumerTag)),
		exchangeName: exchangeName,
		consumerTag:  consumerTag,
		done:         make(chan struct{}),
	}

	if err := consumer.setupChannelAndQueue(); err != nil {
		return nil, err
	}

	consumer.logger.Info("RefreshConsumer инициализирован",
		zap.String("exchange", consumer.exchangeName),
		zap.String("generatedQueueName", consumer.queueName),
	)
	return consumer, nil
}

// setupChannelAndQueue создает канал, объявляет exchange, очередь и биндинг.
func (c *RefreshConsumer) setupChannelAndQueue() error {
	var err error
	c.ch, err = c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err = declareRefreshExchange(c.ch, c.exchangeName); err != nil {
		_ = c.ch.Close()
		return err
	}

	// Каждый экземпляр сервиса получает свою эксклюзивную очередь
	q, err := c.ch.QueueDeclare(
		"",    // name (пустое для автогенерации)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = c.ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	c.queueName = q.Name

	if err = c.ch.QueueBind(c.queueName, "", c.exchangeName, false, nil); err != nil {
		_ = c.ch.Close()
		return fmt.Errorf("failed to bind queue '%s' to exchange '%s': %w", c.queueName, c.exchangeName, err)
	}
	return nil
}

func declareRefreshExchange(ch *amqp091.Channel, exchangeName string) error {
	err := ch.ExchangeDeclare(
		exchangeName,
		refreshExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	return nil
}

// StartConsuming регистрирует консьюмера и обрабатывает сообщения в отдельной горутине.
func (c *RefreshConsumer) StartConsuming() error {
	deliveries, err := c.ch.Consume(
		c.queueName,
		c.consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		close(c.done)
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.logger.Info("Начало прослушивания сообщений об обновлении планет...")
	go func() {
		defer close(c.done)
		for d := range deliveries {
			c.handleMessage(d.Body)
			if err := d.Ack(false); err != nil {
				c.logger.Error("failed to acknowledge message", zap.Error(err))
			}
		}
		c.logger.Info("Канал сообщений RabbitMQ закрыт")
	}()
	return nil
}

// handleMessage запускает обновление. Некорректное тело игнорируется.
func (c *RefreshConsumer) handleMessage(body []byte) bool {
	payload, err := decodeRefreshPayload(body)
	if err != nil {
		c.logger.Warn("Ignoring malformed refresh message", zap.Error(err), zap.Int("size", len(body)))
		return false
	}
	c.logger.Info("Refresh requested",
		zap.String("reason", payload.Reason),
		zap.String("requestedBy", payload.RequestedBy),
	)
	c.refresher.TriggerRefresh()
	return true
}

// Stop отменяет подписку, закрывает канал и ждет завершения обработчика.
func (c *RefreshConsumer) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Остановка RefreshConsumer...")
		if err := c.ch.Cancel(c.consumerTag, false); err != nil {
			c.logger.Warn("failed to cancel consumer", zap.Error(err))
		}
		if err := c.ch.Close(); err != nil {
			c.logger.Warn("failed to close channel", zap.Error(err))
		}
		select {
		case <-c.done:
		case <-time.After(5 * time.Second):
			c.logger.Warn("Timed out waiting for refresh consumer to finish")
		}
	})
}
