//go:build integration

package pgdb

import (
	"context"
	"testing"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/DRSN-tech/search-assistant/pkg/postgres"
	"github.com/DRSN-tech/search-assistant/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	textDim  = 1024
	imageDim = 512
)

func setupCatalog(t *testing.T) *postgres.PgDatabase {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg17",
		tcpostgres.WithDatabase("catalog_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.ConnectDSN(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.RunMigrations(logger.NewNop(), "file://../../../db/migrations"))
	return db
}

func oneHot(dim, idx int) domain.Vector {
	v := make(domain.Vector, dim)
	v[idx] = 1
	return v
}

func insertProduct(t *testing.T, db *postgres.PgDatabase, repo *ProductRepo, product *domain.Product) *domain.Product {
	t.Helper()
	ctx := context.Background()

	tx, err := db.Pool.Begin(ctx)
	require.NoError(t, err)

	created, err := repo.Create(tr.WithTx(ctx, tx), product)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	return created
}

func TestCatalog_Integration(t *testing.T) {
	db := setupCatalog(t)
	ctx := context.Background()
	products := NewProductRepo(db.Pool, converter.NewProductConverter())
	catalog := NewCatalogRepo(db.Pool, logger.NewNop())

	umbrella := domain.NewProduct("Red Umbrella", "Large", decimal.RequireFromString("12.99"))
	umbrella.TextEmbedding = oneHot(textDim, 0)
	umbrella.ImageEmbedding = oneHot(imageDim, 0)
	url := "http://minio/products/umbrella.png"
	umbrella.ImageURL = &url
	umbrella = insertProduct(t, db, products, umbrella)

	raincoat := domain.NewProduct("Raincoat", "", decimal.RequireFromString("40"))
	raincoat.TextEmbedding = oneHot(textDim, 1)
	raincoat = insertProduct(t, db, products, raincoat)

	// без эмбеддингов: не должен попадать в поиск по сходству
	insertProduct(t, db, products, domain.NewProduct("Hat", "", decimal.RequireFromString("5")))

	sess, err := catalog.Acquire(ctx)
	require.NoError(t, err)
	defer sess.Release()

	t.Run("schema", func(t *testing.T) {
		schema, err := sess.Schema(ctx)
		require.NoError(t, err)
		assert.Contains(t, schema.String(), "products - title: text")
		assert.Contains(t, schema.String(), "products - text_embedding: vector")
	})

	t.Run("execute", func(t *testing.T) {
		rows, err := sess.Execute(ctx, "SELECT * FROM products WHERE title ILIKE '%umbrella%' LIMIT 5")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Red Umbrella", rows[0].Title)
		require.NotNil(t, rows[0].Price)
		assert.Equal(t, "12.99", *rows[0].Price)
		require.NotNil(t, rows[0].Image)
		assert.Equal(t, url, *rows[0].Image)
	})

	t.Run("execute is read only", func(t *testing.T) {
		_, err := sess.Execute(ctx, "DELETE FROM products")
		assert.ErrorIs(t, err, e.ErrQueryExecution)

		rows, err := sess.Execute(ctx, "SELECT title FROM products")
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("nearest", func(t *testing.T) {
		got, err := sess.Nearest(ctx, domain.VectorQuery{
			Column: domain.TextEmbeddingColumn,
			Vector: oneHot(textDim, 1),
			Metric: domain.MetricCosine,
			K:      5,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, raincoat.ID, got[0].ProductID)
		assert.InDelta(t, 0, *got[0].Distance, 1e-6)
		assert.Equal(t, umbrella.ID, got[1].ProductID)
	})

	t.Run("nearest with price range", func(t *testing.T) {
		hi := decimal.RequireFromString("20")
		got, err := sess.Nearest(ctx, domain.VectorQuery{
			Column:     domain.TextEmbeddingColumn,
			Vector:     oneHot(textDim, 1),
			Metric:     domain.MetricCosine,
			K:          5,
			PriceRange: &domain.PriceRange{Max: &hi},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Red Umbrella", got[0].Product.Title)
	})

	t.Run("image l2", func(t *testing.T) {
		got, err := sess.Nearest(ctx, domain.VectorQuery{
			Column: domain.ImageEmbeddingColumn,
			Vector: oneHot(imageDim, 0),
			Metric: domain.MetricL2,
			K:      5,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, umbrella.ID, got[0].ProductID)
	})

	t.Run("products by ids", func(t *testing.T) {
		got, err := sess.ProductsByIDs(ctx, []int64{raincoat.ID, 9999})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Raincoat", got[raincoat.ID].Title)
		assert.Equal(t, "40.00", *got[raincoat.ID].Price)
	})

	t.Run("released session", func(t *testing.T) {
		other, err := catalog.Acquire(ctx)
		require.NoError(t, err)
		other.Release()
		other.Release()

		_, err = other.Schema(ctx)
		assert.ErrorIs(t, err, e.ErrSessionReleased)
	})
}

func TestProductRepo_Maintenance_Integration(t *testing.T) {
	db := setupCatalog(t)
	ctx := context.Background()
	products := NewProductRepo(db.Pool, converter.NewProductConverter())

	_, err := db.Pool.Exec(ctx, `INSERT INTO products (title, metadata) VALUES ('Scarf', '{"price": "15.50"}'), ('Glove', '{"price": "n/a"}')`)
	require.NoError(t, err)

	n, err := products.BackfillPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	missing, err := products.ListMissingTextEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.Equal(t, "Scarf", missing[0].Title)
	assert.True(t, missing[0].Price.Valid)
	assert.False(t, missing[1].Price.Valid)

	require.NoError(t, products.SetTextEmbedding(ctx, missing[0].ID, oneHot(textDim, 3)))
	assert.ErrorIs(t, products.SetTextEmbedding(ctx, 9999, oneHot(textDim, 3)), e.ErrProductNotFound)

	missing, err = products.ListMissingTextEmbeddings(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, missing, 1)
}

func TestOutboxEventRepo_Integration(t *testing.T) {
	db := setupCatalog(t)
	ctx := context.Background()
	products := NewProductRepo(db.Pool, converter.NewProductConverter())
	outbox := NewOutboxEventRepo(db.Pool, converter.NewOutboxEventConverter())

	product := insertProduct(t, db, products, domain.NewProduct("Hat", "", decimal.RequireFromString("5")))

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	txCtx := tr.WithTx(ctx, tx)
	event := usecase.NewOutboxEvent("7f1b6b5e-8a8e-4c49-9a39-4f8a0f1d2c3b", usecase.EventProductRegistered, product.ID, []byte("payload"))
	created, err := outbox.Create(txCtx, event)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = outbox.Create(txCtx, event)
	assert.ErrorIs(t, err, e.ErrDuplicateEvent)
	require.NoError(t, tx.Rollback(ctx))

	tx, err = db.Pool.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	created, err = outbox.Create(tr.WithTx(ctx, tx), event)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	batch, err := outbox.GetAndMarkAsProcessing(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, usecase.Processing, batch[0].Status)
	assert.Equal(t, []byte("payload"), batch[0].Payload)

	require.NoError(t, outbox.ReleaseToPending(ctx, created.ID))
	batch, err = outbox.GetAndMarkAsProcessing(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, outbox.MarkAsProcessed(ctx, created.ID))
	batch, err = outbox.GetAndMarkAsProcessing(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
