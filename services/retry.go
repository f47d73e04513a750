package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/blavejr/bookmatch/models"
)

// RetryPolicy bounds retries of transient provider failures. Only
// ErrProviderUnavailable is retried; protocol and dimension errors are not
// transient.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = 5 * time.Second
	}
	if attempt > 16 {
		attempt = 16
	}
	d := base << attempt
	if d > limit {
		d = limit
	}
	return d
}

type retryingProvider struct {
	inner  EmbeddingProvider
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps p so that ErrProviderUnavailable failures are retried with
// exponential backoff. A policy with MaxRetries <= 0 returns p unchanged.
func WithRetry(p EmbeddingProvider, policy RetryPolicy) EmbeddingProvider {
	if policy.MaxRetries <= 0 {
		return p
	}
	return &retryingProvider{inner: p, policy: policy, sleep: sleepContext}
}

func (r *retryingProvider) Model() string { return r.inner.Model() }

func (r *retryingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if !errors.Is(err, models.ErrProviderUnavailable) || attempt >= r.policy.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		wait := r.policy.delay(attempt)
		log.Printf("Embedding attempt %d/%d failed, retrying in %v: %v", attempt+1, r.policy.MaxRetries+1, wait, err)
		if serr := r.sleep(ctx, wait); serr != nil {
			return nil, fmt.Errorf("%w (retry aborted: %v)", err, serr)
		}
	}
}

func (r *retryingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedSequential(ctx, r, texts)
}

func (r *retryingProvider) Close() error { return closeProvider(r.inner) }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// dimensionGuard pins the vector length of the first successful embedding
// and rejects anything else, so vectors from different models never mix.
type dimensionGuard struct {
	inner EmbeddingProvider

	mu  sync.Mutex
	dim int
}

func WithDimensionGuard(p EmbeddingProvider) EmbeddingProvider {
	return &dimensionGuard{inner: p}
}

func (g *dimensionGuard) Model() string { return g.inner.Model() }

func (g *dimensionGuard) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := g.check(len(vec)); err != nil {
		return nil, err
	}
	return vec, nil
}

func (g *dimensionGuard) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := g.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d embeddings for %d texts",
			models.ErrProviderProtocol, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := g.check(len(v)); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// Dimension returns the pinned vector length, or 0 before the first embedding.
func (g *dimensionGuard) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

func (g *dimensionGuard) Close() error { return closeProvider(g.inner) }

func (g *dimensionGuard) check(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dim == 0 {
		g.dim = n
		return nil
	}
	if n != g.dim {
		return fmt.Errorf("%w: model %s returned %d dimensions, expected %d",
			models.ErrDimensionMismatch, g.inner.Model(), n, g.dim)
	}
	return nil
}

// closeProvider releases p if it holds resources.
func closeProvider(p EmbeddingProvider) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
