package usecase

import (
	"context"

	"github.com/DRSN-tech/search-assistant/internal/domain"
)

type TextEmbedder interface {
	EmbedOne(ctx context.Context, text string) (domain.Vector, error)
	EmbedMany(ctx context.Context, texts []string) ([]domain.Vector, error)
	Dimension() int
}

type ImageEmbedder interface {
	EmbedImage(ctx context.Context, src domain.ImageSource) (domain.Vector, error)
	Dimension() int
}

// QueryPlanner переводит запрос пользователя в SQL по живой схеме каталога.
// Ошибка означает недоступность планировщика, отказ модели приходит как domain.Unplannable.
type QueryPlanner interface {
	Plan(ctx context.Context, userQuery string, schema domain.SchemaSnapshot) (domain.PlannerResult, error)
}

type ImagesInfra interface {
	UploadImages(ctx context.Context, req *UploadImagesReq) (*UploadImagesRes, error)
	Stage(ctx context.Context, image *ProductImage) (*StagedImage, error)
	CleanupImages(keys []string)
}

type MessageProducer interface {
	WriteRawMessage(ctx context.Context, req *WriteRawMessageReq) error
}
