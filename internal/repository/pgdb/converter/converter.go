package converter

import (
	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/pgvector/pgvector-go"
)

// ProductConverter преобразует сущности Product между domain и моделью PostgreSQL.
type ProductConverter interface {
	ToModel(entity *domain.Product) *ProductModel
	ToEntity(model *ProductModel) *domain.Product
}

// OutboxEventConverter преобразует сущности OutboxEvent между usecase и моделью PostgreSQL.
type OutboxEventConverter interface {
	ToModel(entity *usecase.OutboxEvent) *OutboxEventModel
	ToEntity(model *OutboxEventModel) *usecase.OutboxEvent
	ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent
}

type ProductConverterImpl struct{}

func NewProductConverter() *ProductConverterImpl {
	return &ProductConverterImpl{}
}

func (c *ProductConverterImpl) ToModel(entity *domain.Product) *ProductModel {
	if entity == nil {
		return nil
	}

	return &ProductModel{
		ID:             entity.ID,
		Title:          entity.Title,
		Description:    entity.Description,
		Price:          entity.Price,
		ImageURL:       entity.ImageURL,
		ImageURL2:      entity.ImageURL2,
		Metadata:       entity.Metadata,
		TextEmbedding:  ConvertVector(entity.TextEmbedding),
		ImageEmbedding: ConvertVector(entity.ImageEmbedding),
		CreatedAt:      entity.CreatedAt,
		UpdatedAt:      entity.UpdatedAt,
	}
}

func (c *ProductConverterImpl) ToEntity(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}

	return &domain.Product{
		ID:             model.ID,
		Title:          model.Title,
		Description:    model.Description,
		Price:          model.Price,
		ImageURL:       model.ImageURL,
		ImageURL2:      model.ImageURL2,
		Metadata:       model.Metadata,
		TextEmbedding:  ConvertPgVector(model.TextEmbedding),
		ImageEmbedding: ConvertPgVector(model.ImageEmbedding),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

type OutboxEventConverterImpl struct{}

func NewOutboxEventConverter() *OutboxEventConverterImpl {
	return &OutboxEventConverterImpl{}
}

func (c *OutboxEventConverterImpl) ToModel(entity *usecase.OutboxEvent) *OutboxEventModel {
	if entity == nil {
		return nil
	}

	return &OutboxEventModel{
		ID:          entity.ID,
		EventID:     entity.EventID,
		EventType:   entity.EventType,
		ProductID:   entity.ProductID,
		Payload:     entity.Payload,
		Status:      string(entity.Status),
		CreatedAt:   entity.CreatedAt,
		ProcessedAt: entity.ProcessedAt,
	}
}

func (c *OutboxEventConverterImpl) ToEntity(model *OutboxEventModel) *usecase.OutboxEvent {
	if model == nil {
		return nil
	}

	return &usecase.OutboxEvent{
		ID:          model.ID,
		EventID:     model.EventID,
		EventType:   model.EventType,
		ProductID:   model.ProductID,
		Payload:     model.Payload,
		Status:      usecase.OutboxStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		ProcessedAt: model.ProcessedAt,
	}
}

func (c *OutboxEventConverterImpl) ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent {
	if models == nil {
		return nil
	}

	out := make([]*usecase.OutboxEvent, 0, len(models))
	for _, m := range models {
		out = append(out, c.ToEntity(m))
	}

	return out
}

// ConvertVector возвращает nil для пустого вектора, чтобы в колонку записался NULL.
func ConvertVector(v domain.Vector) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func ConvertPgVector(v *pgvector.Vector) domain.Vector {
	if v == nil {
		return nil
	}
	return domain.Vector(v.Slice())
}
