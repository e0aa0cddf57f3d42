// Package notify delivers engine events to terminals after commit. Every event
// travels in a versioned Envelope; sinks are Kafka, Redis pub/sub or both.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const EnvelopeVersion = 1

// Envelope v1
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "pos-api"
	Target        string          `json:"target"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id when the event has one
	Payload       json.RawMessage `json:"payload"`
}

// Publisher is satisfied by every sink in this package.
type Publisher interface {
	Emit(ctx context.Context, event string, payload any, target string) error
}

func Wrap(ctx context.Context, producer, event string, payload any, target string) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	if target == "" {
		target = orders.TargetBroadcast
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     event,
		EventVersion:  EnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		Target:        target,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: correlation(payload),
		Payload:       b,
	}, nil
}

func correlation(payload any) string {
	switch p := payload.(type) {
	case orders.NewOrderPayload:
		return p.ID
	case orders.OrderUpdatedPayload:
		return p.ID
	case orders.StatusChangePayload:
		return p.ID
	case orders.OrderPrintedPayload:
		return p.Order.ID
	}
	return ""
}

// PartitionKey keeps every event of one order on one partition, in order.
// Events without an order share the event type's partition.
func PartitionKey(env Envelope) []byte {
	if env.CorrelationID != "" {
		return []byte(env.CorrelationID)
	}
	return []byte(env.EventType)
}
