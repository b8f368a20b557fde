package producer

import (
	"context"
	"encoding/json"
	"time"

	"pool-service/internal/service"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// PoolEventProducer пишет доменные события в один топик,
// ключ — pool id (события одного пула попадают в одну партицию)
type PoolEventProducer struct {
	writer *kafka.Writer
}

func NewPoolEventProducer(brokers []string, topic string) *PoolEventProducer {
	return &PoolEventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

type eventEnvelope struct {
	PoolID    uuid.UUID       `json:"pool_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func (p *PoolEventProducer) publish(ctx context.Context, eventType string, poolID uuid.UUID, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(eventEnvelope{
		PoolID:    poolID,
		EventType: eventType,
		Payload:   raw,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(poolID.String()),
		Value: value,
	})
}

func (p *PoolEventProducer) PublishPoolLocked(ctx context.Context, e service.PoolLockedEvent) error {
	return p.publish(ctx, "pool.locked", e.PoolID, e)
}

func (p *PoolEventProducer) PublishMOQReached(ctx context.Context, e service.MOQReachedEvent) error {
	return p.publish(ctx, "pool.moq_reached", e.PoolID, e)
}

func (p *PoolEventProducer) PublishPaymentCaptured(ctx context.Context, e service.PaymentCapturedEvent) error {
	return p.publish(ctx, "payment.captured", e.PoolID, e)
}

func (p *PoolEventProducer) PublishPaymentRefunded(ctx context.Context, e service.PaymentRefundedEvent) error {
	return p.publish(ctx, "payment.refunded", e.PoolID, e)
}

func (p *PoolEventProducer) PublishPoolFulfilled(ctx context.Context, e service.PoolFulfilledEvent) error {
	return p.publish(ctx, "pool.fulfilled", e.PoolID, e)
}

func (p *PoolEventProducer) PublishPoolFailed(ctx context.Context, e service.PoolFailedEvent) error {
	return p.publish(ctx, "pool.failed", e.PoolID, e)
}

func (p *PoolEventProducer) PublishPaymentAlert(ctx context.Context, e service.PaymentAlertEvent) error {
	return p.publish(ctx, "payment.alert", e.PoolID, e)
}

func (p *PoolEventProducer) Close() error {
	return p.writer.Close()
}
