// Package download fetches raw products into the store, retrying transient
// transport failures and falling back to a secondary archive when the
// primary has purged a product.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/store"
)

// FailedError reports that a product could not be fetched within the retry
// budget. Unit-local: the owning job is abandoned, siblings continue.
type FailedError struct {
	ProductID string
	Err       error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("download failed for product %s: %v", e.ProductID, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Provider fetches one product's raw bytes to a local path.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, ref catalog.ProductRef, dst string) error
}

// Policy is a bounded-attempt retry policy with exponential backoff.
// Injected rather than hardwired so tests can use zero delays.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Delay returns the pause before the given retry (attempt is 1-based; the
// delay applies after that attempt fails).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Coordinator schedules product downloads into the store. The store's
// at-most-once guarantee ensures a product is never fetched twice
// concurrently; the coordinator adds retries and the fallback archive.
type Coordinator struct {
	store          *store.Store
	primary        Provider
	fallback       Provider // nil when no fallback archive is configured
	policy         Policy
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// NewCoordinator creates a download coordinator. fallback may be nil.
func NewCoordinator(st *store.Store, primary, fallback Provider, policy Policy, attemptTimeout time.Duration) *Coordinator {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &Coordinator{
		store:          st,
		primary:        primary,
		fallback:       fallback,
		policy:         policy,
		attemptTimeout: attemptTimeout,
		logger:         slog.Default(),
	}
}

// WithLogger sets a custom logger for the coordinator.
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	c.logger = logger
	return c
}

// Ensure makes the raw product available in the store and returns its
// path. An existing entry short-circuits unless rebuild is set; downloaded
// reports whether bytes were actually fetched.
func (c *Coordinator) Ensure(ctx context.Context, ref catalog.ProductRef, rebuild bool) (path string, downloaded bool, err error) {
	key := store.RawProduct(string(ref.Mission), ref.ID)

	path, downloaded, err = c.store.Publish(ctx, key, rebuild, func(tmp string) error {
		return c.fetchWithRetry(ctx, ref, tmp)
	})
	if err != nil {
		return "", false, &FailedError{ProductID: ref.ID, Err: err}
	}
	if !downloaded {
		c.logger.DebugContext(ctx, "product already in store",
			slog.String("product_id", ref.ID),
			slog.String("title", ref.Title),
		)
	}
	return path, downloaded, nil
}

func (c *Coordinator) fetchWithRetry(ctx context.Context, ref catalog.ProductRef, dst string) error {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		lastErr = c.fetchOnce(ctx, c.primary, ref, dst)
		if lastErr == nil {
			return nil
		}
		c.logger.WarnContext(ctx, "download attempt failed",
			slog.String("product_id", ref.ID),
			slog.String("provider", c.primary.Name()),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt < c.policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.policy.Delay(attempt)):
			}
		}
	}

	if c.fallback == nil {
		return lastErr
	}

	c.logger.InfoContext(ctx, "primary archive exhausted, trying fallback",
		slog.String("product_id", ref.ID),
		slog.String("provider", c.fallback.Name()),
	)
	if err := c.fetchOnce(ctx, c.fallback, ref, dst); err != nil {
		return fmt.Errorf("primary: %w; fallback: %v", lastErr, err)
	}
	return nil
}

func (c *Coordinator) fetchOnce(ctx context.Context, p Provider, ref catalog.ProductRef, dst string) error {
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}
	return p.Fetch(ctx, ref, dst)
}
