package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/store"
	"github.com/Humphreey/pinokio/internal/worker"
)

func fixedWindow(n int) worker.WindowProvider {
	return func(chatID string) int { return n }
}

func TestEnsureRunningDrainsRawIntoSeries(t *testing.T) {
	mem := store.NewMemory()
	agg := aggregator.New(mem, nil)
	pool := worker.NewPool(mem, agg, fixedWindow(2), 10, 10)
	ctx := context.Background()

	_, err := mem.AppendRaw(ctx, "chat1", store.RawEvent{
		MessagesID: "m1", UserID: "M1", UserType: "merchant", Text: "hello",
	})
	require.NoError(t, err)

	pool.EnsureRunning(ctx, "chat1")
	defer pool.StopAll()

	require.Eventually(t, func() bool {
		s, err := mem.GetSeries(ctx, "chat1")
		return err == nil && s != nil && s.Text == "hello"
	}, time.Second, 5*time.Millisecond)

	assert.True(t, pool.IsRunning("chat1"))
	assert.Contains(t, pool.RunningChats(), "chat1")
}

func TestEnsureRunningIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	agg := aggregator.New(mem, nil)
	pool := worker.NewPool(mem, agg, fixedWindow(2), 10, 10)
	ctx := context.Background()

	pool.EnsureRunning(ctx, "chat1")
	pool.EnsureRunning(ctx, "chat1")
	defer pool.StopAll()

	assert.Len(t, pool.RunningChats(), 1)
}

func TestStopAllTerminatesWorkers(t *testing.T) {
	mem := store.NewMemory()
	agg := aggregator.New(mem, nil)
	pool := worker.NewPool(mem, agg, fixedWindow(2), 10, 10)
	ctx := context.Background()

	pool.EnsureRunning(ctx, "chat1")
	pool.EnsureRunning(ctx, "chat2")
	pool.StopAll()

	assert.False(t, pool.IsRunning("chat1"))
	assert.False(t, pool.IsRunning("chat2"))
	assert.Empty(t, pool.RunningChats())
}
