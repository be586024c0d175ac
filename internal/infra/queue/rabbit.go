package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// RabbitPostEventQueue реализует очередь событий постов через AMQP.
type RabbitPostEventQueue struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	queue    string

	mu         sync.Mutex
	deliveries <-chan amqp091.Delivery
}

// NewRabbitPostEventQueue подключается к брокеру и объявляет exchange и очередь.
func NewRabbitPostEventQueue(url, exchange, queueName string) (*RabbitPostEventQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queueName == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queueName, queueName, exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	return &RabbitPostEventQueue{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    queueName,
	}, nil
}

// Enqueue публикует событие в очередь.
func (q *RabbitPostEventQueue) Enqueue(ctx context.Context, event domain.PostEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, q.exchange, q.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
// Подтверждение выполняется через возвращаемый EventAckFunc.
func (q *RabbitPostEventQueue) Receive(ctx context.Context) (domain.PostEvent, domain.EventAckFunc, error) {
	deliveries, err := q.consumeChannel()
	if err != nil {
		return domain.PostEvent{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.PostEvent{}, nil, ctx.Err()
	case delivery, ok := <-deliveries:
		if !ok {
			return domain.PostEvent{}, nil, errors.New("amqp: канал доставки закрыт")
		}
		var event domain.PostEvent
		if err := json.Unmarshal(delivery.Body, &event); err != nil {
			_ = delivery.Nack(false, false)
			return domain.PostEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		return event, ack, nil
	}
}

// Close закрывает соединение с брокером.
func (q *RabbitPostEventQueue) Close() error {
	return q.conn.Close()
}

func (q *RabbitPostEventQueue) consumeChannel() (<-chan amqp091.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	if err := q.ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}
