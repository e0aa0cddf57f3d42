package notify

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/go-pos-orders/internal/kafka"
	"github.com/ariefcatur/go-pos-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Relay moves envelopes from the events topic to the Redis channel of their
// target. Redelivered envelopes are dropped by event id.
type Relay struct {
	Redis       *redis.Client
	Log         *zap.Logger
	ServiceName string
}

// HandleEvent is installed as the consumer handler.
func (s *Relay) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// a poison message is skipped; returning the error would stall the partition
		s.Log.Error("drop undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventVersion != EnvelopeVersion {
		s.Log.Warn("drop unsupported event version", zap.String("event_id", env.EventID), zap.Int("version", env.EventVersion))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := redisx.Once(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	if err := s.Redis.Publish(ctx, redisx.EventsChannel(env.Target), m.Value).Err(); err != nil {
		// forget the event so the redelivery is not dropped
		_ = s.Redis.Del(ctx, dkey).Err()
		return fmt.Errorf("relay %s: %w", env.EventID, err)
	}
	s.Log.Debug("event relayed", zap.String("event_id", env.EventID), zap.String("event", env.EventType),
		zap.String("target", env.Target))
	return nil
}
