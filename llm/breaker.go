package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings configures WithCircuitBreaker.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
}

// DefaultBreakerSettings trips after half of at least five calls fail and
// probes again after thirty seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      5,
	}
}

type breakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

// WithCircuitBreaker guards client with a circuit breaker. While open, calls
// fail fast with an ErrorTypeUnavailable error. Invalid requests and caller
// cancellation do not count as provider failures.
func WithCircuitBreaker(client Client, name string, settings ...BreakerSettings) Client {
	s := DefaultBreakerSettings()
	if len(settings) > 0 {
		s = settings[0]
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureThreshold
		},
		OnStateChange: s.OnStateChange,
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var llmErr *Error
			if errors.As(err, &llmErr) && llmErr.Type == ErrorTypeInvalidRequest {
				return true
			}
			return false
		},
	})
	return &breakerClient{client: client, cb: cb}
}

func (b *breakerClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.client.Synchronous(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewUnavailableError("model service unavailable", err)
		}
		return nil, err
	}
	return out.(*Response), nil
}
