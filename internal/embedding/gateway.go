// Package embedding wraps a remote embedding function with batching, bounded
// retry and per-item failure isolation.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrEmptyInput        = errors.New("embedding input is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder is the external embedding capability. It returns one vector per
// input text, in order, or an error for the whole call.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is the outcome for one input text. Exactly one of Vector and Err is set.
type Result struct {
	Vector []float32
	Err    error
}

type Config struct {
	BatchSize         int
	MaxRetries        int
	Backoff           time.Duration
	RequestsPerSecond float64
}

const (
	defaultBatchSize = 32
	defaultBackoff   = 200 * time.Millisecond
	maxBackoff       = 5 * time.Second
)

type Gateway struct {
	embedder Embedder
	cfg      Config
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	dim int
}

func NewGateway(embedder Embedder, cfg Config) *Gateway {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	g := &Gateway{embedder: embedder, cfg: cfg, sleep: sleepContext}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return g
}

// Dimension returns the vector size seen so far, or 0 before the first success.
func (g *Gateway) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

// EmbedBatch embeds texts in batches of the configured size. The returned
// slice always has one Result per input, in input order.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	// Blank inputs fail on their own and are never sent.
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i].Err = ErrEmptyInput
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		g.embedGroup(ctx, texts, pending[start:end], results)
	}
	return results
}

// Embed embeds a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	res := g.EmbedBatch(ctx, []string{text})
	return res[0].Vector, res[0].Err
}

func (g *Gateway) embedGroup(ctx context.Context, texts []string, idx []int, results []Result) {
	batch := make([]string, len(idx))
	for i, j := range idx {
		batch[i] = texts[j]
	}

	vecs, err := g.callWithRetry(ctx, batch)
	if err != nil {
		// A rejected batch may hide one bad input; retry items alone so the
		// rest still get vectors.
		if len(idx) > 1 && !isRetryable(err) && ctx.Err() == nil {
			for _, j := range idx {
				g.embedGroup(ctx, texts, []int{j}, results)
			}
			return
		}
		for _, j := range idx {
			results[j].Err = err
		}
		return
	}

	for i, j := range idx {
		if err := g.checkDimension(vecs[i]); err != nil {
			results[j].Err = err
			continue
		}
		results[j].Vector = vecs[i]
	}
}

func (g *Gateway) callWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, g.retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vecs, err := g.embedder.EmbedBatch(ctx, batch)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(batch))
		}
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", g.cfg.MaxRetries+1, lastErr)
}

func (g *Gateway) checkDimension(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dim == 0 {
		g.dim = len(vec)
		return nil
	}
	if len(vec) != g.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), g.dim)
	}
	return nil
}

func (g *Gateway) retryDelay(attempt int) time.Duration {
	d := g.cfg.Backoff << attempt
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}

// isRetryable reports whether err looks transient: a network failure or an
// error that declares itself temporary, such as a 429 or 5xx response.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}

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
