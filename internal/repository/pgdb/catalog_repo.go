package pgdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
	"github.com/pgvector/pgvector-go"
	"github.com/shopspring/decimal"
)

const rollbackTimeout = 2 * time.Second

// CatalogRepo выдаёт сессии каталога поверх пула pgx.
type CatalogRepo struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

func NewCatalogRepo(pool *pgxpool.Pool, logger logger.Logger) *CatalogRepo {
	return &CatalogRepo{
		pool:   pool,
		logger: logger,
	}
}

// Acquire берёт соединение из пула на время одного запроса.
func (c *CatalogRepo) Acquire(ctx context.Context) (usecase.CatalogSession, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, e.Join(e.ErrStoreUnavailable, e.Wrap(whereami.WhereAmI(), err))
	}

	return &catalogSession{conn: conn, logger: c.logger}, nil
}

type catalogSession struct {
	conn     *pgxpool.Conn
	logger   logger.Logger
	once     sync.Once
	released atomic.Bool
}

// Release возвращает соединение в пул. Повторные вызовы ничего не делают.
func (s *catalogSession) Release() {
	s.once.Do(func() {
		s.released.Store(true)
		s.conn.Release()
	})
}

func (s *catalogSession) alive() error {
	if s.released.Load() {
		return e.ErrSessionReleased
	}
	return nil
}

// Schema читает колонки схемы public. Для типов расширений (vector) подставляется имя типа.
func (s *catalogSession) Schema(ctx context.Context) (domain.SchemaSnapshot, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	query := `
		SELECT table_name, column_name,
			CASE WHEN data_type = 'USER-DEFINED' THEN udt_name ELSE data_type END
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SchemaColumn, error) {
		var c domain.SchemaColumn
		err := row.Scan(&c.Table, &c.Column, &c.DataType)
		return c, err
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return domain.SchemaSnapshot(columns), nil
}

// Execute выполняет сгенерированный запрос в READ ONLY транзакции, которая всегда откатывается.
func (s *catalogSession) Execute(ctx context.Context, query string) ([]usecase.ProductView, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, e.Join(e.ErrQueryExecution, err)
	}
	defer func() {
		// ctx запроса может быть уже отменён таймаутом
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warnf("read-only rollback failed: %v", rbErr)
		}
	}()

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, e.Join(e.ErrQueryExecution, err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, e.Join(e.ErrQueryExecution, err)
	}

	views := make([]usecase.ProductView, 0, len(records))
	for _, record := range records {
		views = append(views, ProjectRow(record))
	}

	return views, nil
}

// Nearest ищет K ближайших товаров по колонке эмбеддинга. Товары без вектора не участвуют.
func (s *catalogSession) Nearest(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredProduct, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	query, args, err := BuildNearestQuery(q)
	if err != nil {
		return nil, e.Join(e.ErrVectorSearch, err)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, e.Join(e.ErrVectorSearch, e.Wrap(whereami.WhereAmI(), err))
	}

	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ScoredProduct, error) {
		var (
			sp       domain.ScoredProduct
			price    decimal.NullDecimal
			distance float64
		)
		err := row.Scan(&sp.ProductID, &sp.Product.Title, &sp.Product.Description, &price, &sp.Product.Image, &distance)
		sp.Product.Price = formatPrice(price)
		sp.Distance = &distance
		return sp, err
	})
	if err != nil {
		return nil, e.Join(e.ErrVectorSearch, e.Wrap(whereami.WhereAmI(), err))
	}

	return candidates, nil
}

// ProductsByIDs загружает проекции товаров по идентификаторам. Отсутствующие id в ответ не попадают.
func (s *catalogSession) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]usecase.ProductView, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, title, description, price, image_url
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := s.conn.Query(ctx, query, ids)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make(map[int64]usecase.ProductView, len(ids))
	for rows.Next() {
		var (
			id    int64
			view  usecase.ProductView
			price decimal.NullDecimal
		)
		if err := rows.Scan(&id, &view.Title, &view.Description, &price, &view.Image); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		view.Price = formatPrice(price)
		result[id] = view
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

var distanceOperators = map[domain.Metric]string{
	domain.MetricCosine:       "<=>",
	domain.MetricL2:           "<->",
	domain.MetricInnerProduct: "<#>",
}

// BuildNearestQuery собирает SQL поиска ближайших соседей.
// Колонка и оператор берутся из белого списка, вектор и границы цены передаются параметрами.
func BuildNearestQuery(q domain.VectorQuery) (string, []any, error) {
	op, ok := distanceOperators[q.Metric]
	if !ok {
		return "", nil, fmt.Errorf("unsupported metric %q", q.Metric)
	}

	column := q.Column
	if column != domain.TextEmbeddingColumn && column != domain.ImageEmbeddingColumn {
		return "", nil, fmt.Errorf("unsupported embedding column %q", column)
	}

	if q.K <= 0 {
		return "", nil, fmt.Errorf("k must be positive, got %d", q.K)
	}

	if len(q.Vector) == 0 {
		return "", nil, e.ErrEmptyVectors
	}

	args := []any{pgvector.NewVector(q.Vector)}
	where := []string{fmt.Sprintf("%s IS NOT NULL", column)}

	if !q.PriceRange.IsEmpty() {
		if q.PriceRange.Min != nil {
			args = append(args, *q.PriceRange.Min)
			where = append(where, fmt.Sprintf("price >= $%d", len(args)))
		}
		if q.PriceRange.Max != nil {
			args = append(args, *q.PriceRange.Max)
			where = append(where, fmt.Sprintf("price <= $%d", len(args)))
		}
	}

	args = append(args, q.K)
	query := fmt.Sprintf(`
		SELECT id, title, description, price, image_url, (%s %s $1::vector) AS distance
		FROM products
		WHERE %s
		ORDER BY distance
		LIMIT $%d`,
		column, op, strings.Join(where, " AND "), len(args))

	return query, args, nil
}

// ProjectRow превращает строку произвольного запроса в ProductView по именам колонок.
// Колонка изображения может называться image_url или image.
func ProjectRow(row map[string]any) usecase.ProductView {
	view := usecase.ProductView{
		Title:       textValue(row["title"]),
		Description: textValue(row["description"]),
		Price:       priceValue(row["price"]),
	}

	for _, key := range []string{"image_url", "image"} {
		if v, ok := row[key]; ok && v != nil {
			s := textValue(v)
			view.Image = &s
			break
		}
	}

	return view
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// priceValue приводит значение цены к десятичной строке с двумя знаками.
func priceValue(v any) *string {
	var d decimal.Decimal
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid || t.NaN || t.InfinityModifier != pgtype.Finite || t.Int == nil {
			return nil
		}
		d = decimal.NewFromBigInt(t.Int, t.Exp)
	case decimal.Decimal:
		d = t
	case float64:
		d = decimal.NewFromFloat(t)
	case float32:
		d = decimal.NewFromFloat32(t)
	case int64:
		d = decimal.NewFromInt(t)
	case int32:
		d = decimal.NewFromInt32(t)
	case string:
		parsed, err := decimal.NewFromString(t)
		if err != nil {
			return nil
		}
		d = parsed
	default:
		return nil
	}

	s := d.StringFixed(2)
	return &s
}

func formatPrice(p decimal.NullDecimal) *string {
	if !p.Valid {
		return nil
	}
	s := p.Decimal.StringFixed(2)
	return &s
}
