package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/JamesWemyss/psyclone/llm"
)

const (
	// DefaultMaxRetries is the default maximum number of retries
	DefaultMaxRetries = 3
	// DefaultMaxElapsedTime bounds retrying; the turn timeout usually wins first.
	DefaultMaxElapsedTime = 30 * time.Second
	// DefaultMaxInterval is the default maximum interval for backoff
	DefaultMaxInterval = 10 * time.Second
	// DefaultInitialDelay is the default initial delay for exponential backoff
	DefaultInitialDelay = 500 * time.Millisecond
	// RetryAfterMultiplier is the multiplier for retry-after based backoff
	RetryAfterMultiplier = 1.5
	// RetryAfterRandomizationFactor is the randomization factor for retry-after based backoff
	RetryAfterRandomizationFactor = 0.1
	// StandardMultiplier is the multiplier for standard exponential backoff
	StandardMultiplier = 2.0
	// StandardRandomizationFactor is the randomization factor for standard exponential backoff
	StandardRandomizationFactor = 0.2
)

// RetryCallback is called before each retry with the delay about to be slept.
type RetryCallback func(err error, delay time.Duration, attempt int)

// RetryingClient retries retryable model errors (rate limits, timeouts,
// unavailability) with exponential backoff, starting from the provider's
// Retry-After when it sent one.
type RetryingClient struct {
	client         llm.Client
	maxRetries     uint64
	maxElapsedTime time.Duration
	onRetry        RetryCallback
	logger         zerolog.Logger
}

// NewRetryingClient wraps client with the default retry policy.
func NewRetryingClient(client llm.Client, logger zerolog.Logger, onRetry RetryCallback) *RetryingClient {
	return &RetryingClient{
		client:         client,
		maxRetries:     DefaultMaxRetries,
		maxElapsedTime: DefaultMaxElapsedTime,
		onRetry:        onRetry,
		logger:         logger.With().Str("component", "retryingClient").Logger(),
	}
}

// CreateBackoff creates a backoff configuration for retries.
// If retryAfter is provided, it uses that as the initial delay, otherwise uses exponential backoff
func (c *RetryingClient) CreateBackoff(retryAfter time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()

	if retryAfter > 0 {
		eb.InitialInterval = retryAfter
		eb.Multiplier = RetryAfterMultiplier
		eb.RandomizationFactor = RetryAfterRandomizationFactor
	} else {
		eb.InitialInterval = DefaultInitialDelay
		eb.Multiplier = StandardMultiplier
		eb.RandomizationFactor = StandardRandomizationFactor
	}

	eb.MaxInterval = DefaultMaxInterval
	eb.MaxElapsedTime = c.maxElapsedTime
	eb.Reset()

	return backoff.WithMaxRetries(eb, c.maxRetries)
}

// Synchronous implements llm.Client.
func (c *RetryingClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	var b backoff.BackOff
	for attempt := 0; ; attempt++ {
		resp, err := c.client.Synchronous(ctx, req)
		if err == nil || !llm.IsRetryableError(err) {
			return resp, err
		}

		if b == nil {
			var retryAfter time.Duration
			if ra := llm.ExtractRetryAfter(err); ra != nil {
				retryAfter = *ra
			}
			b = c.CreateBackoff(retryAfter)
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.logger.Error().Uint64("max_retries", c.maxRetries).Err(err).Msg("Max retries or elapsed time exceeded")
			return nil, fmt.Errorf("model retries exhausted: %w", err)
		}

		c.logger.Warn().
			Int("attempt", attempt+1).
			Uint64("max_retries", c.maxRetries).
			Err(err).
			Dur("next_delay", delay).
			Msg("Retryable model error. Retrying after delay")
		if c.onRetry != nil {
			c.onRetry(err, delay, attempt)
		}
		if waitErr := WaitForRetry(ctx, delay); waitErr != nil {
			return nil, fmt.Errorf("context cancelled while waiting for retry: %w", waitErr)
		}
	}
}

// WaitForRetry waits for the specified delay, respecting context cancellation
func WaitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ llm.Client = (*RetryingClient)(nil)
