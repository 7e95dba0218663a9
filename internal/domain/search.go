package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Metric — метрика расстояния для поиска ближайших соседей.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric разбирает название метрики из конфигурации.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricL2, MetricInnerProduct:
		return Metric(s), nil
	case "ip":
		return MetricInnerProduct, nil
	case "euclid", "euclidean":
		return MetricL2, nil
	}

	return "", fmt.Errorf("unknown metric %q", s)
}

// EmbeddingColumn — колонка с вектором, по которой идёт поиск.
type EmbeddingColumn string

const (
	TextEmbeddingColumn  EmbeddingColumn = "text_embedding"
	ImageEmbeddingColumn EmbeddingColumn = "image_embedding"
)

// PriceRange — необязательные границы цены для поиска по сходству.
type PriceRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

func (r *PriceRange) IsEmpty() bool {
	return r == nil || (r.Min == nil && r.Max == nil)
}

// VectorQuery описывает запрос ближайших соседей.
type VectorQuery struct {
	Column     EmbeddingColumn
	Vector     Vector
	Metric     Metric
	K          int
	PriceRange *PriceRange
}

// ProductView — проекция товара, которую видит пользователь.
type ProductView struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       *string `json:"price"`
	Image       *string `json:"image"`
}

// ScoredProduct — кандидат поиска по сходству. Distance nil для точных совпадений.
type ScoredProduct struct {
	ProductID int64
	Product   ProductView
	Distance  *float64
}

// ImageSource — изображение для эмбеддинга: либо URL, либо байты с MIME-типом.
type ImageSource struct {
	URL      string
	Data     []byte
	MimeType string
}
