// Package store is the persistence façade over the chat-scoped key-value
// stream store: typed wrappers for the raw stream, final stream, aggregation
// hash and deadline zset families. All operations target a single
// chat-scoped key; no multi-key transactions are required.
package store

import "context"

// Store is implemented by the Redis-backed store and by Memory, the
// in-process fake used in tests.
type Store interface {
	// AppendRaw appends a short message to the chat's raw stream.
	AppendRaw(ctx context.Context, chatID string, e RawEvent) (string, error)
	// ReadNewRaw reads up to max new raw entries via the consumer group,
	// blocking up to blockMs when nothing is pending.
	ReadNewRaw(ctx context.Context, chatID, consumer string, max int64, blockMs int) ([]RawEvent, error)
	// AckRaw acknowledges a raw entry in the consumer group.
	AckRaw(ctx context.Context, chatID, streamID string) error
	// DeleteRaw removes a raw entry outright (used by the PP reply paths,
	// which consume the raw event synchronously rather than via the worker).
	DeleteRaw(ctx context.Context, chatID, streamID string) error
	// EnsureConsumerGroup idempotently creates the chat's consumer group.
	EnsureConsumerGroup(ctx context.Context, chatID string) error

	// GetSeries returns the chat's active series, or nil if none exists.
	GetSeries(ctx context.Context, chatID string) (*Series, error)
	// PutSeries writes (replaces) the chat's active series.
	PutSeries(ctx context.Context, chatID string, s Series) error
	// DeleteSeries removes the chat's active series, if any.
	DeleteSeries(ctx context.Context, chatID string) error

	// AppendFinal appends a long message to the chat's final stream.
	AppendFinal(ctx context.Context, chatID string, m FinalMessage) (string, error)
	// ListFinal returns up to n final messages, newest first.
	ListFinal(ctx context.Context, chatID string, n int64) ([]FinalMessage, error)
	// DeleteFinal removes a final message by stream id.
	DeleteFinal(ctx context.Context, chatID, streamID string) error

	// SetDeadline schedules (or reschedules) the chat's flush deadline.
	SetDeadline(ctx context.Context, chatID string, deadlineTS float64) error
	// RemoveDeadline clears the chat's scheduled deadline, if any.
	RemoveDeadline(ctx context.Context, chatID string) error
	// PopExpired returns up to max chat ids whose deadline is <= now. It does
	// not remove them; the caller removes the deadline as part of flushing.
	PopExpired(ctx context.Context, now float64, max int64) ([]string, error)
	// ListDeadlinedChats returns every chat with a pending deadline.
	ListDeadlinedChats(ctx context.Context) ([]string, error)

	// Ping verifies connectivity to the underlying store.
	Ping(ctx context.Context) error
}
