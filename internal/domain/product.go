package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает товар каталога.
// Description никогда не nil: отсутствующее описание хранится пустой строкой.
type Product struct {
	ID             int64
	Title          string
	Description    string
	Price          decimal.NullDecimal // NULL до заполнения из metadata
	ImageURL       *string
	ImageURL2      *string
	Metadata       map[string]any
	TextEmbedding  Vector // nil, пока эмбеддинг не посчитан
	ImageEmbedding Vector
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

func NewProduct(title, description string, price decimal.Decimal) *Product {
	return &Product{
		Title:       title,
		Description: description,
		Price:       decimal.NewNullDecimal(price),
		Metadata:    map[string]any{"price": price.StringFixed(2)},
	}
}

// EmbeddingText возвращает текст, по которому считается текстовый эмбеддинг товара.
func (p *Product) EmbeddingText() string {
	text := p.Title
	if p.Description != "" {
		text += " " + p.Description
	}
	if p.Price.Valid {
		text += " " + p.Price.Decimal.StringFixed(2)
	}

	return text
}
