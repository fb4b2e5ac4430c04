package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/store"
)

func TestListFinalReturnsNewestFirst(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	id1, err := mem.AppendFinal(ctx, "chat1", store.FinalMessage{Text: "first"})
	require.NoError(t, err)
	id2, err := mem.AppendFinal(ctx, "chat1", store.FinalMessage{Text: "second"})
	require.NoError(t, err)

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Len(t, finals, 2)
	assert.Equal(t, id2, finals[0].StreamID)
	assert.Equal(t, id1, finals[1].StreamID)
}

func TestListFinalRespectsLimit(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := mem.AppendFinal(ctx, "chat1", store.FinalMessage{Text: "x"})
		require.NoError(t, err)
	}
	finals, err := mem.ListFinal(ctx, "chat1", 2)
	require.NoError(t, err)
	assert.Len(t, finals, 2)
}

func TestPopExpiredOnlyReturnsDueChats(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SetDeadline(ctx, "due", 10))
	require.NoError(t, mem.SetDeadline(ctx, "not_due", 1000))

	due, err := mem.PopExpired(ctx, 50, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"due"}, due)
}

func TestPopExpiredRespectsMax(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.SetDeadline(ctx, "a", 1))
	require.NoError(t, mem.SetDeadline(ctx, "b", 1))

	due, err := mem.PopExpired(ctx, 50, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDeleteFinalRemovesOnlyMatchingEntry(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	id1, err := mem.AppendFinal(ctx, "chat1", store.FinalMessage{Text: "keep"})
	require.NoError(t, err)
	id2, err := mem.AppendFinal(ctx, "chat1", store.FinalMessage{Text: "drop"})
	require.NoError(t, err)

	require.NoError(t, mem.DeleteFinal(ctx, "chat1", id2))

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Len(t, finals, 1)
	assert.Equal(t, id1, finals[0].StreamID)
}

func TestAckedRawIsExcludedFromReadNewRaw(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	id, err := mem.AppendRaw(ctx, "chat1", store.RawEvent{Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, mem.AckRaw(ctx, "chat1", id))

	events, err := mem.ReadNewRaw(ctx, "chat1", "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}
