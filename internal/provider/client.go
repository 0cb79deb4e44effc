package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig bounds the retry wrapper around every provider call. The two
// backoff tiers are deliberate: rate-limit responses need a long cool-down,
// anything else gets a short pause.
type RetryConfig struct {
	MaxAttempts  int           // Total attempts including the first (default 3)
	ShortBackoff time.Duration // Wait after a generic transient failure
	LongBackoff  time.Duration // Wait after a rate-limit failure
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		ShortBackoff: 2 * time.Second,
		LongBackoff:  45 * time.Second,
	}
}

// twoTierBackOff selects the wait interval based on the last observed error:
// long for rate limits, short for everything else.
type twoTierBackOff struct {
	cfg     RetryConfig
	lastErr *error
}

func (b *twoTierBackOff) NextBackOff() time.Duration {
	if b.lastErr != nil && IsRateLimited(*b.lastErr) {
		return b.cfg.LongBackoff
	}
	return b.cfg.ShortBackoff
}

func (b *twoTierBackOff) Reset() {}

// BreakerRegistry manages per-tier circuit breakers so a struggling quality
// model does not block fast-tier calls.
type BreakerRegistry struct {
	mu       sync.Mutex
	onChange func(name string, from, to gobreaker.State)
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry. onChange may be nil.
func NewBreakerRegistry(onChange func(name string, from, to gobreaker.State)) *BreakerRegistry {
	return &BreakerRegistry{
		onChange: onChange,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for the given tier name, creating it on first use.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: r.onChange,
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// User cancellation is not a provider health signal.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[name] = cb
	return cb
}

// Client wraps a Provider with bounded retries, two-tier backoff, and a
// per-tier circuit breaker. It is the invocation surface the workflows use.
type Client struct {
	provider Provider
	retry    RetryConfig
	breakers *BreakerRegistry
}

// NewClient creates a Client. breakers may be nil, in which case a private
// registry is created.
func NewClient(p Provider, retry RetryConfig, breakers *BreakerRegistry) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if breakers == nil {
		breakers = NewBreakerRegistry(nil)
	}
	return &Client{provider: p, retry: retry, breakers: breakers}
}

// Generate performs one generation call with retry and breaker protection.
// When retries are exhausted the final provider error is returned untouched.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	var resp Response
	var lastErr error

	cb := c.breakers.Get(req.Tier.String())

	operation := func() error {
		// Fail fast on cancellation.
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return c.provider.Generate(ctx, req)
		})
		if err != nil {
			lastErr = err

			// Circuit open: retrying immediately is pointless.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			// A schema mismatch is a caller decision, not a transient fault.
			if IsFormatError(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		resp = result.(Response)
		return nil
	}

	policy := &twoTierBackOff{cfg: c.retry, lastErr: &lastErr}
	bounded := backoff.WithMaxRetries(policy, uint64(c.retry.MaxAttempts-1))
	err := backoff.Retry(operation, backoff.WithContext(bounded, ctx))
	return resp, err
}

// GenerateJSON performs a structured-output call: the response must parse as
// JSON matching req.Schema and is decoded into v. Shape mismatches surface as
// *FormatError, distinct from provider errors.
func (c *Client) GenerateJSON(ctx context.Context, req Request, v any) error {
	if req.Schema == nil {
		return fmt.Errorf("structured generation requires a schema")
	}
	resp, err := c.Generate(ctx, req)
	if err != nil {
		return err
	}
	return req.Schema.Decode([]byte(resp.Text), v)
}
