package pgdb

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/search-assistant/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

type OutboxEventRepo struct {
	pool *pgxpool.Pool
	conv converter.OutboxEventConverter
}

func NewOutboxEventRepo(pool *pgxpool.Pool, conv converter.OutboxEventConverter) *OutboxEventRepo {
	return &OutboxEventRepo{
		pool: pool,
		conv: conv,
	}
}

// Create вставляет событие в транзакции из контекста и уведомляет воркер через NOTIFY.
// Уведомление доставляется только после коммита.
func (o *OutboxEventRepo) Create(ctx context.Context, event *usecase.OutboxEvent) (*usecase.OutboxEvent, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	model := o.conv.ToModel(event)
	query := `
		INSERT INTO outbox_events (
			event_id,
			event_type,
			product_id,
			payload,
			status,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at;
	`

	if err := tx.QueryRow(ctx, query,
		model.EventID,
		model.EventType,
		model.ProductID,
		model.Payload,
		model.Status,
		model.CreatedAt,
	).Scan(&model.ID, &model.CreatedAt); err != nil {
		if postgresDuplicate(err) {
			return nil, fmt.Errorf("%s: %w: %s", whereami.WhereAmI(), e.ErrDuplicateEvent, event.EventID)
		}

		return nil, fmt.Errorf("%s: failed to insert event: %w", whereami.WhereAmI(), err)
	}

	_, err = tx.Exec(ctx, "NOTIFY outbox_pending;")
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return o.conv.ToEntity(model), nil
}

// GetAndMarkAsProcessing забирает до limit событий в статусе pending и переводит их в processing.
// SKIP LOCKED позволяет нескольким воркерам не пересекаться.
func (o *OutboxEventRepo) GetAndMarkAsProcessing(ctx context.Context, limit int) (events []*usecase.OutboxEvent, err error) {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", whereami.WhereAmI(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		UPDATE outbox_events
		SET status = $1, processing_started_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, event_type, product_id, payload, status, created_at, processed_at
	`

	rows, err := tx.Query(ctx, query, usecase.Processing, usecase.Pending, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query pending events: %w", whereami.WhereAmI(), err)
	}

	models, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*converter.OutboxEventModel, error) {
		var model converter.OutboxEventModel
		err := row.Scan(
			&model.ID,
			&model.EventID,
			&model.EventType,
			&model.ProductID,
			&model.Payload,
			&model.Status,
			&model.CreatedAt,
			&model.ProcessedAt,
		)
		return &model, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to scan events: %w", whereami.WhereAmI(), err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", whereami.WhereAmI(), err)
	}

	return o.conv.ToArrEntity(models), nil
}

func (o *OutboxEventRepo) MarkAsProcessed(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_events
		SET status = $1, processed_at = NOW()
		WHERE id = $2 AND status = $3
	`

	// 0 затронутых строк: событие уже обработано другим воркером
	if _, err := o.pool.Exec(ctx, query, usecase.Processed, id, usecase.Processing); err != nil {
		return fmt.Errorf("%s: failed to mark event %d as processed: %w", whereami.WhereAmI(), id, err)
	}

	return nil
}

// ReleaseToPending возвращает событие в очередь после неудачной публикации.
func (o *OutboxEventRepo) ReleaseToPending(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_events
		SET status = $1, processing_started_at = NULL
		WHERE id = $2 AND status = $3
	`

	if _, err := o.pool.Exec(ctx, query, usecase.Pending, id, usecase.Processing); err != nil {
		return fmt.Errorf("%s: failed to release event %d: %w", whereami.WhereAmI(), id, err)
	}

	return nil
}
