package service

import (
	"context"
	"hash/fnv"
	"strings"
)

// StaticEmbedder produces deterministic bag-of-words vectors without any
// model. Texts sharing words get similar vectors, which is enough for local
// development and tests.
type StaticEmbedder struct {
	dims int
}

// NewStaticEmbedder returns an embedder of the given dimension.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &StaticEmbedder{dims: dims}
}

// Embed hashes every lower-cased word into a signed bucket.
func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, s.dims)
	// Word buckets move in whole steps, so the half-step bias keeps every
	// vector non-zero.
	v[0] = 0.5
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum64()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		v[int((sum>>1)%uint64(s.dims))] += sign
	}
	return v, nil
}

// EmbedBatch embeds each text in turn.
func (s *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(ctx, t)
	}
	return out, nil
}
