package qdrant

import (
	"context"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/pkg/clients"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

// ImageIndexRepo хранит эмбеддинги изображений товаров в Qdrant.
type ImageIndexRepo struct {
	client *clients.QdrantClient
}

func NewImageIndexRepo(client *clients.QdrantClient) *ImageIndexRepo {
	return &ImageIndexRepo{client: client}
}

// Upsert сохраняет или обновляет точку товара. Повторная запись того же товара перезаписывает вектор.
func (q *ImageIndexRepo) Upsert(ctx context.Context, point *domain.QdrantPoint) error {
	wait := true
	_, err := q.client.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.client.CollectionName(),
		Wait:           &wait,
		Points:         []*qdrant.PointStruct{toPointStruct(point)},
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Search возвращает k ближайших точек по евклидову расстоянию, от ближайшей к дальней.
func (q *ImageIndexRepo) Search(ctx context.Context, vector domain.Vector, k int) ([]domain.ScoredPoint, error) {
	limit := uint64(k)
	points, err := q.client.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.client.CollectionName(),
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, e.Join(e.ErrVectorSearch, e.Wrap(whereami.WhereAmI(), err))
	}

	return toScoredPoints(points), nil
}

func toPointStruct(point *domain.QdrantPoint) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(point.ID),
		Vectors: qdrant.NewVectors(point.Vectors...),
		Payload: qdrant.NewValueMap(point.Payloads),
	}
}

// toScoredPoints пропускает точки с UUID-идентификаторами: они не соответствуют товарам каталога.
func toScoredPoints(points []*qdrant.ScoredPoint) []domain.ScoredPoint {
	out := make([]domain.ScoredPoint, 0, len(points))
	for _, p := range points {
		if p.GetId() == nil || p.GetId().GetUuid() != "" {
			continue
		}
		out = append(out, domain.ScoredPoint{
			ProductID: int64(p.GetId().GetNum()),
			Distance:  float64(p.GetScore()),
		})
	}

	return out
}
