package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTimeout marks a delegate call that exceeded its per-call timeout.
// Stages treat it like a malformed response.
var ErrTimeout = errors.New("delegate call timed out")

// CallObserver is notified after every guarded call with its final error
type CallObserver func(tier ModelTier, err error, elapsed time.Duration)

// GuardOptions configures a GuardedClient
type GuardOptions struct {
	Timeout         time.Duration // Per-call deadline covering all attempts; 0 disables
	MaxTries        uint          // Attempts per call; 0 means 3
	InitialInterval time.Duration // First backoff interval; 0 uses the backoff default
	Logger          *slog.Logger
	Observer        CallObserver
}

// GuardedClient wraps a Client with a per-call timeout and exponential
// backoff retries for transient provider errors.
type GuardedClient struct {
	inner Client
	opts  GuardOptions
}

// NewGuardedClient wraps inner with the given options
func NewGuardedClient(inner Client, opts GuardOptions) *GuardedClient {
	if opts.MaxTries == 0 {
		opts.MaxTries = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &GuardedClient{inner: inner, opts: opts}
}

// GenerateContent generates text content with timeout and retries
func (g *GuardedClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return g.call(ctx, tier, func(ctx context.Context) (string, error) {
		return g.inner.GenerateContent(ctx, prompt, tier)
	})
}

// GenerateJSON generates JSON content with timeout and retries
func (g *GuardedClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return g.call(ctx, tier, func(ctx context.Context) (string, error) {
		return g.inner.GenerateJSON(ctx, prompt, tier)
	})
}

// GetModel returns the wrapped client's model for a tier
func (g *GuardedClient) GetModel(tier ModelTier) string {
	return g.inner.GetModel(tier)
}

// Close closes the wrapped client
func (g *GuardedClient) Close() error {
	return g.inner.Close()
}

func (g *GuardedClient) call(ctx context.Context, tier ModelTier, fn func(context.Context) (string, error)) (string, error) {
	callCtx := ctx
	cancel := func() {}
	if g.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
	}
	defer cancel()

	b := backoff.NewExponentialBackOff()
	if g.opts.InitialInterval > 0 {
		b.InitialInterval = g.opts.InitialInterval
	}

	start := time.Now()
	attempt := 0
	text, err := backoff.Retry(callCtx, func() (string, error) {
		attempt++
		text, err := fn(callCtx)
		if err == nil {
			return text, nil
		}
		if callCtx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		g.opts.Logger.Debug("delegate call failed",
			"tier", tier,
			"attempt", attempt,
			"error", err,
		)
		return "", err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(g.opts.MaxTries))

	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, g.opts.Timeout, err)
	}
	if g.opts.Observer != nil {
		g.opts.Observer(tier, err, time.Since(start))
	}
	if err != nil {
		return "", err
	}
	return text, nil
}
