package domain

// QdrantPoint описывает запись в индексе изображений Qdrant. ID совпадает с ID товара.
type QdrantPoint struct {
	ID       uint64
	Vectors  []float32
	Payloads map[string]any
}

func NewQdrantPoint(productID int64, vector Vector, imageURL string) *QdrantPoint {
	return &QdrantPoint{
		ID:      uint64(productID),
		Vectors: vector,
		Payloads: map[string]any{
			"product_id": productID,
			"image_url":  imageURL,
		},
	}
}

// ScoredPoint — найденная точка и её расстояние.
type ScoredPoint struct {
	ProductID int64
	Distance  float64
}
