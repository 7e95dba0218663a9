package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/DRSN-tech/search-assistant/internal/cfg"
	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/repository/redis/converter"
	"github.com/DRSN-tech/search-assistant/pkg/clients"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// CacheRepo кэширует эмбеддинги запросов в Redis. Любая ошибка Redis считается промахом.
type CacheRepo struct {
	client *clients.RedisClient
	conv   converter.EmbeddingConverter
	cfg    *cfg.EmbeddingCfg
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, conv converter.EmbeddingConverter,
	cfg *cfg.EmbeddingCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		conv:   conv,
		cfg:    cfg,
		logger: logger,
	}
}

// GetEmbedding возвращает вектор из кэша. Повреждённые записи удаляются.
func (c *CacheRepo) GetEmbedding(ctx context.Context, key string) (domain.Vector, bool) {
	data, err := c.client.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, r.Nil) {
			c.logger.Warnf("Redis GET failed: %v", e.Wrap(whereami.WhereAmI(), err))
		}
		return nil, false // cache miss
	}

	var model converter.EmbeddingRedisModel
	if err := json.Unmarshal(data, &model); err != nil {
		c.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
		c.evict(key)
		return nil, false
	}

	vector := c.conv.ToDomain(&model)
	if vector == nil {
		c.logger.Warnf("Cache dimension mismatch: key=%s dim=%d len=%d", key, model.Dim, len(model.Vector))
		c.evict(key)
		return nil, false
	}

	return vector, true
}

// SetEmbedding сохраняет вектор с TTL из конфигурации. Ошибки только логируются.
func (c *CacheRepo) SetEmbedding(ctx context.Context, key string, vector domain.Vector) {
	data, err := json.Marshal(c.conv.ToRedisModel(vector))
	if err != nil {
		c.logger.Warnf("Failed to marshal embedding for caching: %v", e.Wrap(whereami.WhereAmI(), err))
		return
	}

	if err := c.client.Client.Set(ctx, key, data, c.cfg.CacheTTL).Err(); err != nil {
		c.logger.Warnf("Redis SET failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}
}

func (c *CacheRepo) evict(key string) {
	if err := c.client.Client.Del(context.Background(), key).Err(); err != nil {
		c.logger.Warnf("Redis del failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}
}
