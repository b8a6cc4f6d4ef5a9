package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/hrygo/ragchat/plugin/ai/cache"
)

// cachedEmbeddingService memoizes Embed results. Query rewrites repeat
// across turns of the same conversation, so a small cache saves a round
// trip on most resumed turns.
type cachedEmbeddingService struct {
	inner EmbeddingService
	cache cache.Cache
	model string
}

// NewCachedEmbeddingService wraps an embedding service with a cache keyed
// by model and input text.
func NewCachedEmbeddingService(inner EmbeddingService, c cache.Cache, model string) EmbeddingService {
	return &cachedEmbeddingService{
		inner: inner,
		cache: c,
		model: model,
	}
}

func (s *cachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(s.model, text)
	if raw, ok := s.cache.Get(key); ok {
		if vector := decodeVector(raw); vector != nil {
			return vector, nil
		}
	}

	vector, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, encodeVector(vector))
	return vector, nil
}

func (s *cachedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

func encodeVector(vector []float32) []byte {
	raw := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return raw
}

// decodeVector returns nil when the payload length is not a whole number
// of float32 values.
func decodeVector(raw []byte) []float32 {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil
	}
	vector := make([]float32, len(raw)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vector
}
