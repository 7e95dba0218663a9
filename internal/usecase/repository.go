package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/domain"
)

// CatalogStore выдаёт сессии каталога, по одной на запрос.
type CatalogStore interface {
	Acquire(ctx context.Context) (CatalogSession, error)
}

// CatalogSession — соединение с каталогом на время одного запроса.
// Release можно вызывать многократно, соединение возвращается в пул ровно один раз.
type CatalogSession interface {
	Schema(ctx context.Context) (domain.SchemaSnapshot, error)
	Execute(ctx context.Context, query string) ([]ProductView, error)
	Nearest(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredProduct, error)
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]ProductView, error)
	Release()
}

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	BackfillPrices(ctx context.Context) (int64, error)
	ListMissingTextEmbeddings(ctx context.Context, limit int) ([]domain.Product, error)
	SetTextEmbedding(ctx context.Context, productID int64, vector domain.Vector) error
}

type OutboxRepository interface {
	Create(ctx context.Context, event *OutboxEvent) (*OutboxEvent, error)
	GetAndMarkAsProcessing(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkAsProcessed(ctx context.Context, id int64) error
	ReleaseToPending(ctx context.Context, id int64) error
}

// EmbeddingCache хранит эмбеддинги запросов. Ошибки кэша считаются промахом.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) (domain.Vector, bool)
	SetEmbedding(ctx context.Context, key string, vector domain.Vector)
}

type ImageRepository interface {
	Upload(ctx context.Context, image *domain.Image) (string, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	ObjectURL(key string) string
}

// ImageIndex — внешний индекс эмбеддингов изображений (Qdrant).
type ImageIndex interface {
	Upsert(ctx context.Context, point *domain.QdrantPoint) error
	Search(ctx context.Context, vector domain.Vector, k int) ([]domain.ScoredPoint, error)
}
