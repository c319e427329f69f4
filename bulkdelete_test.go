package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeDeleter struct {
	bulkCalls   [][]snowflake.ID
	singleCalls []snowflake.ID
	bulkErr     error
	singleErr   error
}

func (f *fakeDeleter) BulkDelete(_ context.Context, _ snowflake.ID, ids []snowflake.ID) error {
	f.bulkCalls = append(f.bulkCalls, ids)
	return f.bulkErr
}

func (f *fakeDeleter) DeleteSingle(_ context.Context, _ snowflake.ID, id snowflake.ID) error {
	f.singleCalls = append(f.singleCalls, id)
	return f.singleErr
}

// testExecutor removes the rate limit so tests run instantly.
func testExecutor(d messageDeleter) *BulkExecutor {
	e := NewBulkExecutor(d)
	e.limiter = rate.NewLimiter(rate.Inf, 1)
	return e
}

func idsAt(t time.Time, n int) []snowflake.ID {
	ids := make([]snowflake.ID, n)
	for i := range ids {
		ids[i] = snowflake.New(t.Add(time.Duration(i) * time.Second))
	}
	return ids
}

func TestPartitionByAge(t *testing.T) {
	now := time.Now()
	cutoff := now.Add(-bulkDeleteMaxAge)

	fresh := idsAt(now.Add(-time.Hour), 3)
	stale := idsAt(now.Add(-20*24*time.Hour), 2)

	recent, old := partitionByAge(append(fresh, stale...), cutoff)
	assert.Len(t, recent, 3)
	assert.Len(t, old, 2)
}

func TestBulkExecutorDeleteMessages(t *testing.T) {
	channel := snowflake.ID(42)

	t.Run("recent messages use bulk batches of at most 100", func(t *testing.T) {
		d := &fakeDeleter{}
		e := testExecutor(d)

		ids := idsAt(time.Now().Add(-time.Hour), 250)
		result := e.DeleteMessages(context.Background(), channel, ids)

		assert.Equal(t, 250, result.Deleted)
		assert.Equal(t, 0, result.Failed)
		require.Len(t, d.bulkCalls, 3)
		assert.Len(t, d.bulkCalls[0], 100)
		assert.Len(t, d.bulkCalls[1], 100)
		assert.Len(t, d.bulkCalls[2], 50)
		assert.Empty(t, d.singleCalls)
	})

	t.Run("old messages are deleted individually", func(t *testing.T) {
		d := &fakeDeleter{}
		e := testExecutor(d)

		ids := idsAt(time.Now().Add(-30*24*time.Hour), 5)
		result := e.DeleteMessages(context.Background(), channel, ids)

		assert.Equal(t, 5, result.Deleted)
		assert.Empty(t, d.bulkCalls)
		assert.Len(t, d.singleCalls, 5)
	})

	t.Run("a lone recent message avoids the bulk endpoint", func(t *testing.T) {
		d := &fakeDeleter{}
		e := testExecutor(d)

		ids := idsAt(time.Now().Add(-time.Minute), 1)
		result := e.DeleteMessages(context.Background(), channel, ids)

		assert.Equal(t, 1, result.Deleted)
		assert.Empty(t, d.bulkCalls)
		assert.Len(t, d.singleCalls, 1)
	})

	t.Run("mixed ages split across both paths", func(t *testing.T) {
		d := &fakeDeleter{}
		e := testExecutor(d)

		ids := append(idsAt(time.Now().Add(-time.Hour), 10), idsAt(time.Now().Add(-20*24*time.Hour), 3)...)
		result := e.DeleteMessages(context.Background(), channel, ids)

		assert.Equal(t, 13, result.Deleted)
		require.Len(t, d.bulkCalls, 1)
		assert.Len(t, d.bulkCalls[0], 10)
		assert.Len(t, d.singleCalls, 3)
	})

	t.Run("bulk failures count the whole batch", func(t *testing.T) {
		d := &fakeDeleter{bulkErr: errors.New("boom")}
		e := testExecutor(d)

		ids := idsAt(time.Now().Add(-time.Hour), 10)
		result := e.DeleteMessages(context.Background(), channel, ids)

		assert.Equal(t, 0, result.Deleted)
		assert.Equal(t, 10, result.Failed)
	})

	t.Run("single failures count per message", func(t *testing.T) {
		d := &fakeDeleter{singleErr: errors.New("boom")}
		e := testExecutor(d)

		ids := idsAt(time.Now().Add(-30*24*time.Hour), 4)
		result := e.DeleteMessages(context.Background(), channel, ids)

		assert.Equal(t, 0, result.Deleted)
		assert.Equal(t, 4, result.Failed)
	})

	t.Run("cancelled context fails the remainder", func(t *testing.T) {
		d := &fakeDeleter{}
		e := NewBulkExecutor(d)
		// Real limiter so Wait actually blocks on a cancelled context
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ids := idsAt(time.Now().Add(-time.Hour), 150)
		result := e.DeleteMessages(ctx, channel, ids)

		assert.Equal(t, 0, result.Deleted)
		assert.Equal(t, 150, result.Failed)
		assert.Empty(t, d.bulkCalls)
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		d := &fakeDeleter{}
		e := testExecutor(d)

		result := e.DeleteMessages(context.Background(), channel, nil)
		assert.Equal(t, BulkDeleteResult{}, result)
	})
}
