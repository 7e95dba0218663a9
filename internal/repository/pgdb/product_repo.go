package pgdb

import (
	"context"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
	"github.com/pgvector/pgvector-go"
)

// ProductRepo реализует репозиторий товаров поверх PostgreSQL.
type ProductRepo struct {
	pool *pgxpool.Pool
	conv converter.ProductConverter
}

func NewProductRepo(pool *pgxpool.Pool, conv converter.ProductConverter) *ProductRepo {
	return &ProductRepo{
		pool: pool,
		conv: conv,
	}
}

// Create вставляет товар в транзакции из контекста и возвращает его с присвоенным id.
func (p *ProductRepo) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	model := p.conv.ToModel(product)
	query := `
		INSERT INTO products (
			title, description, price, image_url, image_url2,
			metadata, text_embedding, image_embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8::vector)
		RETURNING id, created_at;
	`

	err = tx.QueryRow(ctx, query,
		model.Title,
		model.Description,
		model.Price,
		model.ImageURL,
		model.ImageURL2,
		model.Metadata,
		model.TextEmbedding,
		model.ImageEmbedding,
	).Scan(&model.ID, &model.CreatedAt)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(model), nil
}

// BackfillPrices переносит цену из metadata в колонку price там, где она ещё не заполнена.
func (p *ProductRepo) BackfillPrices(ctx context.Context) (int64, error) {
	query := `
		UPDATE products
		SET price = CAST(metadata->>'price' AS numeric), updated_at = NOW()
		WHERE price IS NULL
		  AND metadata ? 'price'
		  AND metadata->>'price' ~ '^[0-9]+(\.[0-9]+)?$'
	`

	tag, err := p.pool.Exec(ctx, query)
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return tag.RowsAffected(), nil
}

// ListMissingTextEmbeddings возвращает товары без текстового эмбеддинга в порядке id.
func (p *ProductRepo) ListMissingTextEmbeddings(ctx context.Context, limit int) ([]domain.Product, error) {
	query := `
		SELECT id, title, description, price, created_at
		FROM products
		WHERE text_embedding IS NULL
		ORDER BY id
		LIMIT $1
	`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	models, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (converter.ProductModel, error) {
		var m converter.ProductModel
		err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Price, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	result := make([]domain.Product, 0, len(models))
	for i := range models {
		result = append(result, *p.conv.ToEntity(&models[i]))
	}

	return result, nil
}

// SetTextEmbedding сохраняет текстовый эмбеддинг товара.
func (p *ProductRepo) SetTextEmbedding(ctx context.Context, productID int64, vector domain.Vector) error {
	query := `
		UPDATE products
		SET text_embedding = $1::vector, updated_at = NOW()
		WHERE id = $2
	`

	tag, err := p.pool.Exec(ctx, query, pgvector.NewVector(vector), productID)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	return nil
}
