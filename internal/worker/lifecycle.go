package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

// OrderLifecycle reacts to published pipeline events that require an order
// state transition outside the job that emitted them. It hangs off the
// outbox publisher as a local subscriber, so reactions run at-least-once
// with the same delivery guarantees as external sinks.
type OrderLifecycle struct {
	store  domain.Store
	logger infra.Logger
}

// NewOrderLifecycle wires the lifecycle reactor.
func NewOrderLifecycle(store domain.Store, logger infra.Logger) *OrderLifecycle {
	return &OrderLifecycle{store: store, logger: logger}
}

type orderEvent struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

// React applies the order-side consequence of one event. Unhandled topics
// are ignored; transitions are idempotent so redelivery is safe.
func (l *OrderLifecycle) React(ctx context.Context, topic string, payload json.RawMessage) error {
	switch topic {
	case domain.TopicBundleFailed, domain.TopicQualityFailed:
		var ev orderEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode %s payload: %w", topic, err)
		}
		if ev.OrderID == "" {
			return fmt.Errorf("%s payload without orderId", topic)
		}
		reason := ev.Error
		if reason == "" {
			reason = topic
		}
		if err := l.store.Orders().SetStatus(ctx, ev.OrderID, domain.OrderStatusRefundPending, reason); err != nil {
			return fmt.Errorf("mark order refund pending: %w", err)
		}
		l.logger.Info().
			Str("order_id", ev.OrderID).
			Str("topic", topic).
			Msg("lifecycle: refund initiated")
		return nil
	default:
		return nil
	}
}
