package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tellusko/tellusko/internal/core/port"
)

// CircuitBreakerGenerator wraps a Generator so a failing LLM backend sheds
// load fast instead of queueing requests against a dead upstream.
type CircuitBreakerGenerator struct {
	inner   port.Generator
	breaker *gobreaker.CircuitBreaker
}

func NewCircuitBreakerGenerator(inner port.Generator, name string, logger *slog.Logger) *CircuitBreakerGenerator {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && (counts.ConsecutiveFailures >= 5 || failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &CircuitBreakerGenerator{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (cb *CircuitBreakerGenerator) Complete(ctx context.Context, system, prompt string) (string, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.inner.Complete(ctx, system, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("circuit breaker: %w", err)
	}
	return result.(string), nil
}

func (cb *CircuitBreakerGenerator) State() gobreaker.State {
	return cb.breaker.State()
}
