package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Embedder defines the interface for text embedding backends.
type Embedder interface {
	// Embed converts a text string into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts in one round trip; the result is index-aligned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFactory builds the backend on first use.
type EmbedderFactory func(ctx context.Context) (Embedder, error)

// ErrBackendDown marks backend errors that affect every text, such as a
// lost connection or a dead worker process. Only these trip the breaker;
// a failure for one text leaves the others alone.
var ErrBackendDown = errors.New("embedding backend unavailable")

// DefaultInitRetry is how long a failed model init is remembered before the
// next call tries again.
const DefaultInitRetry = 30 * time.Second

// EmbeddingProvider owns a lazily created Embedder and turns every failure
// into "no result". Callers get either a normalized vector of the configured
// dimension or nil; errors are logged, never returned.
//
// The model is created at most once. A failed init is retried after
// initRetry has passed.
type EmbeddingProvider struct {
	factory   EmbedderFactory
	dims      int
	log       *zap.Logger
	breaker   *gobreaker.CircuitBreaker
	initRetry time.Duration

	mu       sync.Mutex
	model    Embedder
	failedAt time.Time
}

// NewEmbeddingProvider wraps factory. dims is the expected vector length.
func NewEmbeddingProvider(factory EmbedderFactory, dims int, log *zap.Logger) *EmbeddingProvider {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("embeddings")
	return &EmbeddingProvider{
		factory:   factory,
		dims:      dims,
		log:       log,
		initRetry: DefaultInitRetry,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embeddings",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return !errors.Is(err, ErrBackendDown)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

// Dimensions returns the vector length every result has.
func (p *EmbeddingProvider) Dimensions() int {
	return p.dims
}

// Embed returns the embedding of text, or nil when none could be produced.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) []float32 {
	model, ok := p.load(ctx)
	if !ok {
		return nil
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return model.Embed(ctx, text)
	})
	if err != nil {
		p.log.Warn("embedding failed", zap.Error(err))
		return nil
	}
	return p.accept(out.([]float32))
}

// EmbedBatch embeds texts in one backend call. The result is index-aligned
// with texts; entries that failed validation are nil. If the call as a whole
// fails every entry is nil.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results
	}
	model, ok := p.load(ctx)
	if !ok {
		return results
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return model.EmbedBatch(ctx, texts)
	})
	if err != nil {
		p.log.Warn("batch embedding failed", zap.Int("texts", len(texts)), zap.Error(err))
		return results
	}
	vecs := out.([][]float32)
	if len(vecs) != len(texts) {
		p.log.Warn("batch embedding size mismatch", zap.Int("want", len(texts)), zap.Int("got", len(vecs)))
		return results
	}
	for i, v := range vecs {
		results[i] = p.accept(v)
	}
	return results
}

// Close releases the backend if it was created and holds resources.
func (p *EmbeddingProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// load returns the model, creating it on first use. Concurrent first callers
// wait for a single factory call.
func (p *EmbeddingProvider) load(ctx context.Context) (Embedder, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model, true
	}
	if !p.failedAt.IsZero() && time.Since(p.failedAt) < p.initRetry {
		return nil, false
	}

	start := time.Now()
	// The model outlives the request that happened to trigger its creation.
	model, err := p.factory(context.WithoutCancel(ctx))
	if err == nil && model == nil {
		err = fmt.Errorf("embedder factory returned no model")
	}
	if err != nil {
		p.failedAt = time.Now()
		p.log.Error("embedding model unavailable", zap.Error(err), zap.Duration("retry_in", p.initRetry))
		return nil, false
	}
	p.model, p.failedAt = model, time.Time{}
	p.log.Info("embedding model ready", zap.Int("dimensions", p.dims), zap.Duration("took", time.Since(start)))
	return p.model, true
}

func (p *EmbeddingProvider) accept(v []float32) []float32 {
	if len(v) != p.dims {
		p.log.Warn("embedding has wrong dimension", zap.Int("want", p.dims), zap.Int("got", len(v)))
		return nil
	}
	if !normalize(v) {
		p.log.Warn("embedding has zero norm")
		return nil
	}
	return v
}

// normalize scales v to unit length in place. It reports false for a zero
// or non-finite vector.
func normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return true
}
