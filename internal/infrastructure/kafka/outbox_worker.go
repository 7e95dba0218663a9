package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/DRSN-tech/search-assistant/pkg/retry"
	"github.com/jackc/pgx/v5"
)

const (
	outboxChannel     = "outbox_pending"
	outboxBatchSize   = 10
	notifyWaitTimeout = 30 * time.Second
	reconnectBase     = 2 * time.Second
	reconnectMax      = 30 * time.Second
)

// OutboxWorker публикует события outbox в Kafka: при старте и по уведомлению LISTEN/NOTIFY.
type OutboxWorker struct {
	repo      usecase.OutboxRepository
	logger    logger.Logger
	producer  usecase.MessageProducer
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	dbConnStr string
}

func NewOutboxWorker(
	repo usecase.OutboxRepository,
	logger logger.Logger,
	producer usecase.MessageProducer,
	dbConnStr string,
) *OutboxWorker {
	return &OutboxWorker{
		repo:      repo,
		logger:    logger,
		producer:  producer,
		stop:      make(chan struct{}),
		dbConnStr: dbConnStr,
	}
}

func (w *OutboxWorker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		// Обрабатываем "остатки" при старте
		w.logger.Infof("Draining pending outbox events on startup...")
		w.drain(ctx)
	}()

	// Запускаем слушатель уведомлений
	go func() {
		defer w.wg.Done()
		defer cancel()
		w.listenOutboxNotifications(ctx)
	}()

	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
}

// Stop останавливает воркер и ждёт завершения горутин.
func (w *OutboxWorker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *OutboxWorker) listenOutboxNotifications(ctx context.Context) {
	var conn *pgx.Conn

	connect := func() error {
		c, err := pgx.Connect(ctx, w.dbConnStr)
		if err != nil {
			return e.Wrap("failed to connect for LISTEN", err)
		}

		if _, err = c.Exec(ctx, "LISTEN "+outboxChannel); err != nil {
			c.Close(ctx)
			return e.Wrap("failed to LISTEN", err)
		}

		conn = c
		w.logger.Infof("Subscribed to '%s' channel", outboxChannel)
		return nil
	}

	defer func() {
		if conn != nil {
			conn.Close(context.Background())
		}
	}()

	for attempt := 0; ; {
		if ctx.Err() != nil {
			return
		}

		if conn == nil {
			if err := connect(); err != nil {
				sleep := retry.ExponentialBackoff(reconnectBase, reconnectMax, attempt, retry.DefaultJitter)
				w.logger.Warnf("Outbox listener connect failed, retrying in %v: %v", sleep, err)
				attempt++
				if !w.sleep(ctx, sleep) {
					return
				}
				continue
			}
			attempt = 0
			// события могли прийти, пока соединения не было
			w.drain(ctx)
		}

		waitCtx, cancel := context.WithTimeout(ctx, notifyWaitTimeout)
		notif, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Warnf("Connection lost: %v. Reconnecting...", err)
			conn.Close(context.Background())
			conn = nil
			continue
		}

		if notif != nil && notif.Channel == outboxChannel {
			w.logger.Debugf("Received outbox notification, draining outbox events")
			w.drain(ctx)
		}
	}
}

// drain обрабатывает пачки, пока они не закончатся.
func (w *OutboxWorker) drain(ctx context.Context) {
	for {
		hasMore, err := w.processBatch(ctx)
		if err != nil {
			w.logger.Warnf("Batch processing failed: %v", err)
			return
		}
		if !hasMore {
			return
		}
	}
}

// processBatch публикует одну пачку. Неотправленные события возвращаются в pending,
// и после пачки с ошибками drain останавливается до следующего уведомления.
func (w *OutboxWorker) processBatch(ctx context.Context) (bool, error) {
	events, err := w.repo.GetAndMarkAsProcessing(ctx, outboxBatchSize)
	if err != nil {
		return false, err
	}

	if len(events) == 0 {
		return false, nil
	}

	failed := 0
	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			failed++
			w.logger.Warnf("publish of event %s failed: %v", event.EventID, err)
			if relErr := w.repo.ReleaseToPending(ctx, event.ID); relErr != nil {
				w.logger.Warnf("release of event %s failed: %v", event.EventID, relErr)
			}
			continue
		}
		if err := w.repo.MarkAsProcessed(ctx, event.ID); err != nil {
			w.logger.Warnf("mark processed failed: %v", err)
		}
	}

	if failed > 0 {
		return false, nil
	}

	return true, nil
}

func (w *OutboxWorker) processEvent(ctx context.Context, event *usecase.OutboxEvent) error {
	err := w.producer.WriteRawMessage(ctx, usecase.NewWriteRawMessageReq(event.ProductID, event.EventType, event.Payload))
	if err != nil {
		if isRetryableError(err) {
			return e.Wrap("Temporary Kafka failure, will retry", err)
		}
		return e.Wrap("Permanent Kafka failure", err)
	}

	return nil
}

func (w *OutboxWorker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"i/o timeout",
		"network is unreachable",
		"broker not available",
		"connection reset",
		"broken pipe",
		"no such host",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(errStr, phrase) {
			return true
		}
	}
	return false
}
