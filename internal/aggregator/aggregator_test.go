package aggregator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/store"
)

func clockAt(ts float64) aggregator.Clock {
	return func() float64 { return ts }
}

// TestBurstFusion is scenario 4 / law "burst fusion idempotence": three
// same-author events within the window fuse into one final message.
func TestBurstFusion(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	agg := aggregator.New(mem, clockAt(0))

	err := agg.ProcessMessage(ctx, "chat1", store.RawEvent{MessagesID: "m1", UserID: "U", Text: "a"}, 2)
	require.NoError(t, err)

	agg2 := aggregator.New(mem, clockAt(1))
	err = agg2.ProcessMessage(ctx, "chat1", store.RawEvent{MessagesID: "m2", UserID: "U", Text: "b"}, 2)
	require.NoError(t, err)

	agg3 := aggregator.New(mem, clockAt(1.5))
	err = agg3.ProcessMessage(ctx, "chat1", store.RawEvent{MessagesID: "m3", UserID: "U", Text: "c"}, 2)
	require.NoError(t, err)

	agg4 := aggregator.New(mem, clockAt(4.5))
	id, err := agg4.Flush(ctx, "chat1", 4.5)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Len(t, finals, 1)
	assert.Equal(t, "a\nb\nc", finals[0].Text)
	assert.Equal(t, 3, finals[0].Count)
	assert.Equal(t, 0.0, finals[0].StartTS)
	assert.Equal(t, 1.5, finals[0].EndTS)
}

// TestAuthorSwitchFlushes is scenario 5 / law "author change causes flush".
func TestAuthorSwitchFlushes(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	agg0 := aggregator.New(mem, clockAt(0))
	require.NoError(t, agg0.ProcessMessage(ctx, "chat1", store.RawEvent{MessagesID: "m1", UserID: "M1", Text: "q1"}, 2))

	agg1 := aggregator.New(mem, clockAt(1))
	require.NoError(t, agg1.ProcessMessage(ctx, "chat1", store.RawEvent{MessagesID: "m2", UserID: "M2", Text: "q2"}, 2))

	agg2 := aggregator.New(mem, clockAt(4))
	_, err := agg2.Flush(ctx, "chat1", 4)
	require.NoError(t, err)

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Len(t, finals, 2)

	// ListFinal returns newest first: M2's final, then M1's.
	assert.Equal(t, "M2", finals[0].UserID)
	assert.Equal(t, "q2", finals[0].Text)
	assert.Equal(t, 1, finals[0].Count)

	assert.Equal(t, "M1", finals[1].UserID)
	assert.Equal(t, "q1", finals[1].Text)
	assert.Equal(t, 1, finals[1].Count)
}

// TestWindowExpiryFlushes is the "window expiry causes flush" law.
func TestWindowExpiryFlushes(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	agg0 := aggregator.New(mem, clockAt(0))
	require.NoError(t, agg0.ProcessMessage(ctx, "chat1", store.RawEvent{MessagesID: "m1", UserID: "U", Text: "first"}, 2))

	// Same author, but arrives after window + epsilon: must flush then start anew.
	aggLate := aggregator.New(mem, clockAt(2.5))
	require.NoError(t, aggLate.ProcessMessage(ctx, "chat1", store.RawEvent{MessagesID: "m2", UserID: "U", Text: "second"}, 2))

	aggFlush := aggregator.New(mem, clockAt(10))
	_, err := aggFlush.Flush(ctx, "chat1", 10)
	require.NoError(t, err)

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Len(t, finals, 2)
	assert.Equal(t, "second", finals[0].Text)
	assert.Equal(t, "first", finals[1].Text)
}

// TestFlushWithNoSeriesDropsDeadline covers the "deadlines for non-existent
// series are silently dropped" invariant: a stale deadline entry is removed
// rather than retried forever.
func TestFlushWithNoSeriesDropsDeadline(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SetDeadline(ctx, "ghost", 1))

	agg := aggregator.New(mem, clockAt(5))
	id, err := agg.Flush(ctx, "ghost", 5)
	require.NoError(t, err)
	assert.Empty(t, id)

	chats, err := mem.ListDeadlinedChats(ctx)
	require.NoError(t, err)
	assert.NotContains(t, chats, "ghost")
}

// TestAppendToLastLongFindsNewestMatchingMerchant exercises the merchant append-to-last-long
// path, confirming it finds the newest merchant final for the same user and
// combines text rather than creating a new series.
func TestAppendToLastLongFindsNewestMatchingMerchant(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	agg := aggregator.New(mem, clockAt(0))

	_, err := mem.AppendFinal(ctx, "chat1", store.FinalMessage{UserID: "other", Text: "irrelevant", StartTS: 0, EndTS: 0, Count: 1})
	require.NoError(t, err)
	_, err = mem.AppendFinal(ctx, "chat1", store.FinalMessage{UserID: "M1", UserType: "merchant", Text: "first question", StartTS: 10, EndTS: 10, Count: 1})
	require.NoError(t, err)

	id, err := agg.AppendToLastLong(ctx, "chat1", "M1", "merchant_user", "follow up", 20)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Len(t, finals, 2)
	assert.Equal(t, "first question\nfollow up", finals[0].Text)
	assert.Equal(t, 2, finals[0].Count)
	assert.Equal(t, 10.0, finals[0].StartTS)
	assert.Equal(t, 20.0, finals[0].EndTS)
}

func TestAppendToLastLongReturnsEmptyWhenNoMerchantMatch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	agg := aggregator.New(mem, clockAt(0))

	id, err := agg.AppendToLastLong(ctx, "chat1", "M1", "merchant_user", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, id)
}
