package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/usecase"
)

// CachedTextEmbedder кэширует эмбеддинги запросов. Пакетные вызовы идут мимо кэша.
type CachedTextEmbedder struct {
	next  usecase.TextEmbedder
	cache usecase.EmbeddingCache
	model string
}

func NewCachedTextEmbedder(next usecase.TextEmbedder, cache usecase.EmbeddingCache, model string) *CachedTextEmbedder {
	return &CachedTextEmbedder{
		next:  next,
		cache: cache,
		model: model,
	}
}

func (c *CachedTextEmbedder) Dimension() int { return c.next.Dimension() }

func (c *CachedTextEmbedder) EmbedOne(ctx context.Context, text string) (domain.Vector, error) {
	key := CacheKey(c.model, c.next.Dimension(), text)

	if v, ok := c.cache.GetEmbedding(ctx, key); ok && v.Validate(c.next.Dimension()) == nil {
		return v, nil
	}

	v, err := c.next.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetEmbedding(ctx, key, v)

	return v, nil
}

func (c *CachedTextEmbedder) EmbedMany(ctx context.Context, texts []string) ([]domain.Vector, error) {
	return c.next.EmbedMany(ctx, texts)
}

// CacheKey строит ключ по модели, размерности и нормализованному тексту.
func CacheKey(model string, dim int, text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return fmt.Sprintf("embedding:%s:%d:%s", model, dim, hex.EncodeToString(sum[:]))
}
