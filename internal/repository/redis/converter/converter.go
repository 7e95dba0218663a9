package converter

import "github.com/DRSN-tech/search-assistant/internal/domain"

// EmbeddingConverter преобразует вектор между domain и моделью Redis.
type EmbeddingConverter interface {
	ToRedisModel(vector domain.Vector) *EmbeddingRedisModel
	ToDomain(model *EmbeddingRedisModel) domain.Vector
}

type EmbeddingConverterImpl struct{}

func NewEmbeddingConverter() *EmbeddingConverterImpl {
	return &EmbeddingConverterImpl{}
}

func (c *EmbeddingConverterImpl) ToRedisModel(vector domain.Vector) *EmbeddingRedisModel {
	return &EmbeddingRedisModel{
		Dim:    len(vector),
		Vector: []float32(vector),
	}
}

// ToDomain возвращает nil, если записанная размерность не совпадает с длиной вектора.
func (c *EmbeddingConverterImpl) ToDomain(model *EmbeddingRedisModel) domain.Vector {
	if model == nil || model.Dim != len(model.Vector) {
		return nil
	}

	return domain.Vector(model.Vector)
}
