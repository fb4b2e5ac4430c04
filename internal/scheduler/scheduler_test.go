package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/scheduler"
	"github.com/Humphreey/pinokio/internal/store"
)

func TestSchedulerFlushesExpiredSeries(t *testing.T) {
	mem := store.NewMemory()
	agg := aggregator.New(mem, nil)
	ctx := context.Background()

	require.NoError(t, mem.PutSeries(ctx, "chat1", store.Series{
		UserID: "M1", Text: "overdue text", StartTS: 1, LastTS: 1, Count: 1,
	}))
	require.NoError(t, mem.SetDeadline(ctx, "chat1", 1)) // already in the past

	sched := scheduler.New(mem, agg, 10, 100)
	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		finals, err := mem.ListFinal(ctx, "chat1", 10)
		return err == nil && len(finals) == 1
	}, time.Second, 10*time.Millisecond)

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Len(t, finals, 1)
	assert.Equal(t, "overdue text", finals[0].Text)

	deadlines, err := mem.ListDeadlinedChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, deadlines)
}

func TestSchedulerStopIsIdempotentWithStart(t *testing.T) {
	mem := store.NewMemory()
	agg := aggregator.New(mem, nil)
	sched := scheduler.New(mem, agg, 10, 100)
	sched.Start(context.Background())
	sched.Stop()
	sched.Stop()
}
