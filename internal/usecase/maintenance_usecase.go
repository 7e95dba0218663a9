package usecase

import (
	"context"

	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
)

const DefaultBackfillBatch = 32

// MaintenanceUseCase восстанавливает данные каталога: цены из metadata и недостающие текстовые эмбеддинги.
type MaintenanceUseCase struct {
	productRepo  ProductRepository
	textEmbedder TextEmbedder
	logger       logger.Logger
}

func NewMaintenanceUC(productRepo ProductRepository, textEmbedder TextEmbedder, logger logger.Logger) *MaintenanceUseCase {
	return &MaintenanceUseCase{
		productRepo:  productRepo,
		textEmbedder: textEmbedder,
		logger:       logger,
	}
}

// Backfill заполняет цены, затем считает эмбеддинги пачками по batchSize.
// Вектор пишется целиком или не пишется вовсе.
func (m *MaintenanceUseCase) Backfill(ctx context.Context, batchSize int) (*BackfillRes, error) {
	const op = "MaintenanceUseCase.Backfill"

	if batchSize <= 0 {
		batchSize = DefaultBackfillBatch
	}

	updated, err := m.productRepo.BackfillPrices(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	m.logger.Infof("%s: prices backfilled: %d", op, updated)

	res := &BackfillRes{PricesUpdated: updated}
	for {
		products, err := m.productRepo.ListMissingTextEmbeddings(ctx, batchSize)
		if err != nil {
			return res, e.Wrap(op, err)
		}
		if len(products) == 0 {
			break
		}

		texts := make([]string, len(products))
		for i := range products {
			texts[i] = products[i].EmbeddingText()
		}

		vectors, err := m.textEmbedder.EmbedMany(ctx, texts)
		if err != nil {
			return res, e.Wrap(op, err)
		}
		if len(vectors) != len(products) {
			return res, e.Wrap(op, e.ErrEmbeddingCountInvalid)
		}

		for i := range products {
			if err := m.productRepo.SetTextEmbedding(ctx, products[i].ID, vectors[i]); err != nil {
				return res, e.Wrap(op, err)
			}
			res.EmbeddingsComputed++
		}

		m.logger.Debugf("%s: batch of %d embeddings stored", op, len(products))
		if len(products) < batchSize {
			break
		}
	}

	m.logger.Infof("%s: embeddings computed: %d", op, res.EmbeddingsComputed)
	return res, nil
}
