package redis

import (
	"context"
	"testing"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/cfg"
	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/repository/redis/converter"
	"github.com/DRSN-tech/search-assistant/pkg/clients"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*CacheRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := clients.NewRedisClient(&cfg.RedisCfg{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewCacheRepo(client, converter.NewEmbeddingConverter(), &cfg.EmbeddingCfg{CacheTTL: time.Hour}, logger.NewNop())
	return repo, mr
}

func TestCacheRepo_RoundTrip(t *testing.T) {
	repo, mr := newTestCache(t)
	ctx := context.Background()

	_, ok := repo.GetEmbedding(ctx, "embedding:m:3:abc")
	assert.False(t, ok)

	repo.SetEmbedding(ctx, "embedding:m:3:abc", domain.Vector{0.5, -1, 2})

	got, ok := repo.GetEmbedding(ctx, "embedding:m:3:abc")
	require.True(t, ok)
	assert.Equal(t, domain.Vector{0.5, -1, 2}, got)
	assert.Equal(t, time.Hour, mr.TTL("embedding:m:3:abc"))

	mr.FastForward(2 * time.Hour)
	_, ok = repo.GetEmbedding(ctx, "embedding:m:3:abc")
	assert.False(t, ok)
}

func TestCacheRepo_CorruptEntryIsEvicted(t *testing.T) {
	repo, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("bad-json", "{not json"))
	_, ok := repo.GetEmbedding(ctx, "bad-json")
	assert.False(t, ok)
	assert.False(t, mr.Exists("bad-json"))

	require.NoError(t, mr.Set("bad-dim", `{"dim":4,"vector":[1,2]}`))
	_, ok = repo.GetEmbedding(ctx, "bad-dim")
	assert.False(t, ok)
	assert.False(t, mr.Exists("bad-dim"))
}

func TestCacheRepo_UnavailableIsMiss(t *testing.T) {
	repo, mr := newTestCache(t)
	mr.Close()

	ctx := context.Background()
	repo.SetEmbedding(ctx, "k", domain.Vector{1})
	_, ok := repo.GetEmbedding(ctx, "k")
	assert.False(t, ok)
}
