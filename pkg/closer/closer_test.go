package closer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClose_LIFO(t *testing.T) {
	c := NewCloser(0)
	var order []string
	for _, name := range []string{"db", "redis", "http"} {
		c.Add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	require.Equal(t, 3, c.Len())

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []string{"http", "redis", "db"}, order)
}

func TestClose_CollectsErrors(t *testing.T) {
	c := NewCloser(0)
	closed := false
	c.AddSimple("pool", func() { closed = true })
	c.Add("kafka", func(context.Context) error { return errors.New("writer closed") })

	err := c.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[!] kafka: writer closed")
	assert.True(t, closed)
}

func TestClose_Once(t *testing.T) {
	c := NewCloser(0)
	calls := 0
	c.AddSimple("pool", func() { calls++ })

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestClose_ForcedAfterTimeout(t *testing.T) {
	c := NewCloser(time.Second)
	var stuckCalls atomic.Int32

	c.Add("slow-forced", func(ctx context.Context) error {
		return errors.New("not flushed")
	})
	c.Add("stuck", func(ctx context.Context) error {
		if stuckCalls.Add(1) == 1 {
			<-ctx.Done()
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown interrupted")
	assert.Contains(t, err.Error(), "[FORCED] slow-forced: not flushed")
}
