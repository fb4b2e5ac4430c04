// Package aggregator fuses bursts of consecutive same-author messages into a
// single logical "long" message, driven by a sliding inactivity window and
// the deadline scheduler in package scheduler.
package aggregator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/store"
)

// Clock returns the current time as a Unix timestamp in seconds. Exists so
// tests can drive time deterministically.
type Clock func() float64

// Aggregator owns the per-chat flush mutex that both the worker (via
// ProcessMessage) and the deadline scheduler (via Flush) must take around
// the entire read-modify-write of series state, so a deadline-driven flush
// can never race a live append.
type Aggregator struct {
	store store.Store
	now   Clock

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Aggregator over the given store. If now is nil, the system
// wall clock is used.
func New(s store.Store, now Clock) *Aggregator {
	if now == nil {
		now = wallClock
	}
	return &Aggregator{
		store: s,
		now:   now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (a *Aggregator) lockFor(chatID string) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	l, ok := a.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[chatID] = l
	}
	return l
}

// ProcessMessage fuses the incoming raw event into the chat's active
// series, or flushes the current series and starts a new one if it belongs
// to a different author or has fallen outside the window.
func (a *Aggregator) ProcessMessage(ctx context.Context, chatID string, raw store.RawEvent, windowS int) error {
	l := a.lockFor(chatID)
	l.Lock()
	defer l.Unlock()
	return a.processMessageLocked(ctx, chatID, raw, windowS)
}

func (a *Aggregator) processMessageLocked(ctx context.Context, chatID string, raw store.RawEvent, windowS int) error {
	now := a.now()

	current, err := a.store.GetSeries(ctx, chatID)
	if err != nil {
		return fmt.Errorf("aggregator: get series: %w", err)
	}

	if current == nil {
		if err := a.startSeries(ctx, chatID, raw, now); err != nil {
			return err
		}
		return a.scheduleAfterStart(ctx, chatID, now, windowS)
	}

	sameAuthor := current.UserID == raw.UserID
	withinWindow := now-current.LastTS <= float64(windowS)

	if sameAuthor && withinWindow {
		text := current.Text
		if text != "" {
			text += "\n" + raw.Text
		} else {
			text = raw.Text
		}
		current.Text = text
		current.LastTS = now
		current.Count++
		if err := a.store.PutSeries(ctx, chatID, *current); err != nil {
			return fmt.Errorf("aggregator: extend series: %w", err)
		}
		if err := a.store.SetDeadline(ctx, chatID, now+float64(windowS)); err != nil {
			return fmt.Errorf("aggregator: reschedule deadline: %w", err)
		}
		log.Debug().Str("chat_id", chatID).Int("count", current.Count).Msg("series extended")
		return nil
	}

	if _, err := a.flushLocked(ctx, chatID, now); err != nil {
		return fmt.Errorf("aggregator: flush before new series: %w", err)
	}
	if err := a.startSeries(ctx, chatID, raw, now); err != nil {
		return err
	}
	return a.scheduleAfterStart(ctx, chatID, now, windowS)
}

func (a *Aggregator) startSeries(ctx context.Context, chatID string, raw store.RawEvent, now float64) error {
	s := store.Series{
		UserID:     raw.UserID,
		MessagesID: raw.MessagesID,
		Username:   raw.Username,
		UserType:   raw.UserType,
		Text:       raw.Text,
		StartTS:    now,
		LastTS:     now,
		Count:      1,
	}
	// No deadline is set here: the caller schedules the new series against
	// window_s after this returns.
	if err := a.store.PutSeries(ctx, chatID, s); err != nil {
		return fmt.Errorf("aggregator: start series: %w", err)
	}
	return nil
}

// scheduleAfterStart is a small helper so both ProcessMessage call sites set
// the deadline using the same window the series was created with.
func (a *Aggregator) scheduleAfterStart(ctx context.Context, chatID string, now float64, windowS int) error {
	return a.store.SetDeadline(ctx, chatID, now+float64(windowS))
}

// Flush acquires the per-chat lock and flushes the active series (if any)
// into a final message. Safe to call concurrently from the scheduler and
// from ProcessMessage's author-switch path; the mutex totally orders them.
func (a *Aggregator) Flush(ctx context.Context, chatID string, now float64) (string, error) {
	l := a.lockFor(chatID)
	l.Lock()
	defer l.Unlock()
	return a.flushLocked(ctx, chatID, now)
}

func (a *Aggregator) flushLocked(ctx context.Context, chatID string, now float64) (string, error) {
	s, err := a.store.GetSeries(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("aggregator: flush get series: %w", err)
	}
	if s == nil {
		// A deadline with no backing series (already flushed by a racing
		// author-switch, or stale) is silently dropped.
		if err := a.store.RemoveDeadline(ctx, chatID); err != nil {
			return "", fmt.Errorf("aggregator: drop stale deadline: %w", err)
		}
		return "", nil
	}

	id, err := a.store.AppendFinal(ctx, chatID, store.FinalMessage{
		UserID:     s.UserID,
		MessagesID: s.MessagesID,
		Username:   s.Username,
		UserType:   s.UserType,
		Text:       s.Text,
		StartTS:    s.StartTS,
		EndTS:      s.LastTS,
		Count:      s.Count,
	})
	if err != nil {
		return "", fmt.Errorf("aggregator: append final: %w", err)
	}

	if err := a.store.DeleteSeries(ctx, chatID); err != nil {
		return "", fmt.Errorf("aggregator: delete series: %w", err)
	}
	if err := a.store.RemoveDeadline(ctx, chatID); err != nil {
		return "", fmt.Errorf("aggregator: remove deadline: %w", err)
	}

	log.Debug().Str("chat_id", chatID).Str("final_id", id).Int("count", s.Count).Msg("series flushed")
	return id, nil
}

// FlushAll force-flushes every chat with a pending deadline. Used once by
// app.Coordinator.Shutdown before workers are stopped.
func (a *Aggregator) FlushAll(ctx context.Context) (map[string]string, error) {
	chats, err := a.store.ListDeadlinedChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregator: list deadlined chats: %w", err)
	}
	now := a.now()
	results := make(map[string]string, len(chats))
	for _, chatID := range chats {
		id, err := a.Flush(ctx, chatID, now)
		if err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Msg("flush_all: flush failed")
			continue
		}
		results[chatID] = id
	}
	return results, nil
}

// AppendToLastLong merges text onto the most recent already-flushed
// merchant message from this user instead of starting a new series: it
// scans up to 100 newest final messages for the first merchant entry by
// this user, combines the new text into it, and re-appends + deletes the
// old entry. Returns "" if no match was found. Only valid when no active
// series already belongs to this user in this chat — callers (package
// ingress) check that first. Routed through the same per-chat mutex as
// Flush/ProcessMessage so it can't race a concurrent flush of the same chat.
func (a *Aggregator) AppendToLastLong(ctx context.Context, chatID, userID, username, text string, now float64) (string, error) {
	l := a.lockFor(chatID)
	l.Lock()
	defer l.Unlock()

	finals, err := a.store.ListFinal(ctx, chatID, 100)
	if err != nil {
		return "", fmt.Errorf("aggregator: append_to_last_long: list final: %w", err)
	}

	for _, old := range finals {
		if old.UserType != "merchant" || old.UserID != userID {
			continue
		}
		combinedText := old.Text
		if combinedText != "" {
			combinedText += "\n" + text
		} else {
			combinedText = text
		}
		newID, err := a.store.AppendFinal(ctx, chatID, store.FinalMessage{
			UserID:     old.UserID,
			MessagesID: old.MessagesID,
			Username:   username,
			UserType:   old.UserType,
			Text:       combinedText,
			StartTS:    old.StartTS,
			EndTS:      now,
			Count:      old.Count + 1,
		})
		if err != nil {
			return "", fmt.Errorf("aggregator: append_to_last_long: append combined: %w", err)
		}
		if err := a.store.DeleteFinal(ctx, chatID, old.StreamID); err != nil {
			return "", fmt.Errorf("aggregator: append_to_last_long: delete old: %w", err)
		}
		return newID, nil
	}
	return "", nil
}

func wallClock() float64 {
	return nowUnix()
}
