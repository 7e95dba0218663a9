package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRepo struct {
	pending   []*usecase.OutboxEvent
	processed []int64
	released  []int64
}

func (f *fakeOutboxRepo) Create(ctx context.Context, event *usecase.OutboxEvent) (*usecase.OutboxEvent, error) {
	f.pending = append(f.pending, event)
	return event, nil
}

func (f *fakeOutboxRepo) GetAndMarkAsProcessing(ctx context.Context, limit int) ([]*usecase.OutboxEvent, error) {
	n := min(limit, len(f.pending))
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch, nil
}

func (f *fakeOutboxRepo) MarkAsProcessed(ctx context.Context, id int64) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutboxRepo) ReleaseToPending(ctx context.Context, id int64) error {
	f.released = append(f.released, id)
	return nil
}

type fakeProducer struct {
	sent   []*usecase.WriteRawMessageReq
	failID int64
}

func (f *fakeProducer) WriteRawMessage(ctx context.Context, req *usecase.WriteRawMessageReq) error {
	if req.ProductID == f.failID {
		return errors.New("dial tcp: connection refused")
	}
	f.sent = append(f.sent, req)
	return nil
}

func events(n int) []*usecase.OutboxEvent {
	out := make([]*usecase.OutboxEvent, 0, n)
	for i := 1; i <= n; i++ {
		ev := usecase.NewOutboxEvent("ev", usecase.EventProductRegistered, int64(i), []byte{byte(i)})
		ev.ID = int64(i)
		out = append(out, ev)
	}
	return out
}

func TestDrain_PublishesAllBatches(t *testing.T) {
	repo := &fakeOutboxRepo{pending: events(25)}
	producer := &fakeProducer{}
	w := NewOutboxWorker(repo, logger.NewNop(), producer, "")

	w.drain(context.Background())

	assert.Len(t, producer.sent, 25)
	assert.Len(t, repo.processed, 25)
	assert.Empty(t, repo.released)
	assert.Equal(t, usecase.EventProductRegistered, producer.sent[0].EventType)
}

func TestProcessBatch_ReleasesFailedEvents(t *testing.T) {
	repo := &fakeOutboxRepo{pending: events(3)}
	producer := &fakeProducer{failID: 2}
	w := NewOutboxWorker(repo, logger.NewNop(), producer, "")

	hasMore, err := w.processBatch(context.Background())
	require.NoError(t, err)

	assert.False(t, hasMore)
	assert.Equal(t, []int64{1, 3}, repo.processed)
	assert.Equal(t, []int64{2}, repo.released)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(usecase.NewWriteRawMessageReq(42, usecase.EventProductRegistered, []byte("payload")))

	assert.Equal(t, []byte("42"), msg.Key)
	assert.Equal(t, []byte("payload"), msg.Value)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(usecase.EventProductRegistered), msg.Headers[0].Value)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("dial tcp 10.0.0.1:9092: i/o timeout")))
	assert.False(t, isRetryableError(errors.New("message too large")))
	assert.False(t, isRetryableError(nil))
}
