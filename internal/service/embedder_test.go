package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector per text, or an error for texts in fail.
type fakeEmbedder struct {
	dims  int
	fail  map[string]bool
	calls atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail[text] {
		return nil, errors.New("inference failed")
	}
	v := make([]float32, f.dims)
	for i := range v {
		v[i] = 2
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func factoryFor(e Embedder) EmbedderFactory {
	return func(context.Context) (Embedder, error) { return e, nil }
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbeddingProvider_NormalizesVectors(t *testing.T) {
	p := NewEmbeddingProvider(factoryFor(&fakeEmbedder{dims: 4}), 4, nil)

	v := p.Embed(context.Background(), "hello")
	require.Len(t, v, 4)
	assert.InDelta(t, 1.0, norm(v), 1e-6)
	assert.InDelta(t, 0.5, v[0], 1e-6)
}

func TestEmbeddingProvider_WrongDimensionIsNoResult(t *testing.T) {
	p := NewEmbeddingProvider(factoryFor(&fakeEmbedder{dims: 3}), 4, nil)

	assert.Nil(t, p.Embed(context.Background(), "hello"))
	assert.Equal(t, []([]float32){nil, nil}, p.EmbedBatch(context.Background(), []string{"a", "b"}))
}

func TestEmbeddingProvider_InferenceFailureIsNoResult(t *testing.T) {
	p := NewEmbeddingProvider(factoryFor(&fakeEmbedder{dims: 4, fail: map[string]bool{"boom": true}}), 4, nil)

	assert.Nil(t, p.Embed(context.Background(), "boom"))
	assert.NotNil(t, p.Embed(context.Background(), "fine"))
}

func TestEmbeddingProvider_InitFailureIsRememberedThenRetried(t *testing.T) {
	var attempts atomic.Int32
	p := NewEmbeddingProvider(func(context.Context) (Embedder, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("model download failed")
		}
		return &fakeEmbedder{dims: 4}, nil
	}, 4, nil)
	p.initRetry = time.Hour

	for i := 0; i < 3; i++ {
		assert.Nil(t, p.Embed(context.Background(), "x"))
	}
	assert.Equal(t, int32(1), attempts.Load())
	assert.Len(t, p.EmbedBatch(context.Background(), []string{"a", "b"}), 2)

	p.initRetry = 0
	assert.NotNil(t, p.Embed(context.Background(), "x"))
	assert.NotNil(t, p.Embed(context.Background(), "y"))
	assert.Equal(t, int32(2), attempts.Load(), "a successful init is never repeated")
}

func TestEmbeddingProvider_ConcurrentFirstUseInitializesOnce(t *testing.T) {
	var attempts atomic.Int32
	fake := &fakeEmbedder{dims: 8}
	p := NewEmbeddingProvider(func(context.Context) (Embedder, error) {
		attempts.Add(1)
		return fake, nil
	}, 8, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, p.Embed(context.Background(), "x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, int32(16), fake.calls.Load())
}

func TestEmbeddingProvider_CanceledFirstCallerDoesNotPoisonInit(t *testing.T) {
	p := NewEmbeddingProvider(func(ctx context.Context) (Embedder, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &fakeEmbedder{dims: 2}, nil
	}, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Embed(ctx, "x")

	assert.NotNil(t, p.Embed(context.Background(), "x"))
}

// downEmbedder fails every call as if the backend were unreachable.
type downEmbedder struct{ calls atomic.Int32 }

func (d *downEmbedder) Embed(context.Context, string) ([]float32, error) {
	d.calls.Add(1)
	return nil, fmt.Errorf("dial: %w", ErrBackendDown)
}

func (d *downEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	_, err := d.Embed(ctx, "")
	return nil, err
}

func TestEmbeddingProvider_BreakerOpensWhenBackendIsDown(t *testing.T) {
	down := &downEmbedder{}
	p := NewEmbeddingProvider(factoryFor(down), 2, nil)

	for i := 0; i < 5; i++ {
		assert.Nil(t, p.Embed(context.Background(), "x"))
	}
	assert.Equal(t, int32(5), down.calls.Load())

	// Open breaker: the backend is not called at all.
	assert.Nil(t, p.Embed(context.Background(), "x"))
	assert.Equal(t, int32(5), down.calls.Load())
}

func TestEmbeddingProvider_TextFailuresDoNotTripBreaker(t *testing.T) {
	fake := &fakeEmbedder{dims: 2, fail: map[string]bool{"boom": true}}
	p := NewEmbeddingProvider(factoryFor(fake), 2, nil)

	for i := 0; i < 10; i++ {
		assert.Nil(t, p.Embed(context.Background(), "boom"))
	}
	assert.NotNil(t, p.Embed(context.Background(), "fine"))
	assert.Equal(t, int32(11), fake.calls.Load())
}

func TestEmbeddingProvider_EmptyBatch(t *testing.T) {
	fake := &fakeEmbedder{dims: 2}
	p := NewEmbeddingProvider(factoryFor(fake), 2, nil)

	assert.Empty(t, p.EmbedBatch(context.Background(), nil))
	assert.Equal(t, int32(0), fake.calls.Load())
}

func TestStaticEmbedder(t *testing.T) {
	s := NewStaticEmbedder(64)
	ctx := context.Background()

	a, err := s.Embed(ctx, "Fix the login bug")
	require.NoError(t, err)
	b, _ := s.Embed(ctx, "fix the LOGIN bug")
	c, _ := s.Embed(ctx, "")

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotZero(t, norm(c))

	batch, err := s.EmbedBatch(ctx, []string{"Fix the login bug", ""})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{a, c}, batch)
}

func TestStaticEmbedder_ThroughProvider(t *testing.T) {
	p := NewEmbeddingProvider(factoryFor(NewStaticEmbedder(32)), 32, nil)

	v := p.Embed(context.Background(), "add dark mode")
	require.Len(t, v, 32)
	assert.InDelta(t, 1.0, norm(v), 1e-5)
}
