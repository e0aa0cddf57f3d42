package notify

import (
	"context"
	"errors"
	"fmt"

	kafkax "github.com/ariefcatur/go-pos-orders/internal/kafka"
	"github.com/ariefcatur/go-pos-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// KafkaPublisher appends envelopes to the events topic.
type KafkaPublisher struct {
	Producer *kafkax.Producer
	Service  string
}

func (k *KafkaPublisher) Emit(ctx context.Context, event string, payload any, target string) error {
	env, err := Wrap(ctx, k.Service, event, payload, target)
	if err != nil {
		return err
	}
	if err := k.Producer.Publish(PartitionKey(env), kafkax.MustMarshal(env), kafkax.EventHeaders(event, env.EventVersion)...); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event, err)
	}
	return nil
}

// RedisPublisher publishes envelopes straight to the target's channel.
type RedisPublisher struct {
	Client  *redis.Client
	Service string
}

func (r *RedisPublisher) Emit(ctx context.Context, event string, payload any, target string) error {
	env, err := Wrap(ctx, r.Service, event, payload, target)
	if err != nil {
		return err
	}
	if err := r.Client.Publish(ctx, redisx.EventsChannel(env.Target), kafkax.MustMarshal(env)).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event, err)
	}
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Emit(ctx context.Context, event string, payload any, target string) error {
	var errs []error
	for _, p := range m {
		if err := p.Emit(ctx, event, payload, target); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Emit(context.Context, string, any, string) error { return nil }
