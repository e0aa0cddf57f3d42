package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

var DefaultBreaker = BreakerSettings{Failures: 5, Cooldown: 10 * time.Second}

// Breaker stops calling a failing sink so requests don't each wait out its
// timeout. While open, Emit fails fast with gobreaker.ErrOpenState.
type Breaker struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(name string, next Publisher, s BreakerSettings, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	if s.Failures == 0 {
		s.Failures = DefaultBreaker.Failures
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultBreaker.Cooldown
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("publisher breaker state change", zap.String("sink", name),
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Emit(ctx context.Context, event string, payload any, target string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Emit(ctx, event, payload, target)
	})
	return err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }
