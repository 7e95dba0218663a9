package usecase

import "context"

type SearchUC interface {
	SearchByText(ctx context.Context, req *TextSearchReq) (*TextSearchRes, error)
	SearchByImage(ctx context.Context, req *ImageSearchReq) (*ImageSearchRes, error)
}

type ProductUC interface {
	RegisterNewProduct(ctx context.Context, req *RegisterProductReq) (*RegisterProductRes, error)
}

type MaintenanceUC interface {
	Backfill(ctx context.Context, batchSize int) (*BackfillRes, error)
}
