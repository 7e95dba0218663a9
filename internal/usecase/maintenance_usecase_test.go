package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProductRepo struct {
	created     []*domain.Product
	createErr   error
	backfilled  int64
	missing     []domain.Product
	embeddings  map[int64]domain.Vector
	setErr      error
	listBatches []int
}

func (f *fakeProductRepo) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	product.ID = int64(len(f.created) + 1)
	f.created = append(f.created, product)
	return product, nil
}

func (f *fakeProductRepo) BackfillPrices(ctx context.Context) (int64, error) {
	return f.backfilled, nil
}

func (f *fakeProductRepo) ListMissingTextEmbeddings(ctx context.Context, limit int) ([]domain.Product, error) {
	f.listBatches = append(f.listBatches, limit)
	var out []domain.Product
	for _, p := range f.missing {
		if _, done := f.embeddings[p.ID]; done {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeProductRepo) SetTextEmbedding(ctx context.Context, productID int64, vector domain.Vector) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.embeddings == nil {
		f.embeddings = make(map[int64]domain.Vector)
	}
	f.embeddings[productID] = vector
	return nil
}

func TestBackfill(t *testing.T) {
	repo := &fakeProductRepo{backfilled: 3}
	for i := int64(1); i <= 5; i++ {
		repo.missing = append(repo.missing, domain.Product{ID: i, Title: "item"})
	}
	embedder := &fakeTextEmbedder{dim: textDim}

	res, err := NewMaintenanceUC(repo, embedder, logger.NewNop()).Backfill(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.PricesUpdated)
	assert.Equal(t, 5, res.EmbeddingsComputed)
	assert.Len(t, repo.embeddings, 5)
	assert.Len(t, embedder.texts, 5)
	assert.Equal(t, []int{2, 2, 2}, repo.listBatches)
}

func TestBackfill_EmbeddingFailureStops(t *testing.T) {
	repo := &fakeProductRepo{missing: []domain.Product{{ID: 1, Title: "a"}}}
	embedder := &fakeTextEmbedder{dim: textDim, err: errors.New("provider down")}

	res, err := NewMaintenanceUC(repo, embedder, logger.NewNop()).Backfill(context.Background(), 0)
	require.Error(t, err)
	assert.Zero(t, res.EmbeddingsComputed)
	assert.Empty(t, repo.embeddings)
}
