package converter

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/shopspring/decimal"
)

// ProductModel представляет запись таблицы products в PostgreSQL.
type ProductModel struct {
	ID             int64               `db:"id"`
	Title          string              `db:"title"`
	Description    string              `db:"description"`
	Price          decimal.NullDecimal `db:"price"`
	ImageURL       *string             `db:"image_url"`
	ImageURL2      *string             `db:"image_url2"`
	Metadata       map[string]any      `db:"metadata"`
	TextEmbedding  *pgvector.Vector    `db:"text_embedding"`
	ImageEmbedding *pgvector.Vector    `db:"image_embedding"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      *time.Time          `db:"updated_at"`
}

// OutboxEventModel представляет запись таблицы outbox_events в PostgreSQL.
type OutboxEventModel struct {
	ID          int64      `db:"id"`
	EventID     string     `db:"event_id"`
	EventType   string     `db:"event_type"`
	ProductID   int64      `db:"product_id"`
	Payload     []byte     `db:"payload"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}
