// Package scheduler implements the global deadline scheduler: a single
// loop that periodically fires expirations from the deadline sorted set
// and flushes the corresponding chats.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/store"
)

// Scheduler fires expirations from store.PopExpired and hands each expired
// chat to the aggregator for flushing. It never touches raw streams.
type Scheduler struct {
	store      store.Store
	aggregator *aggregator.Aggregator
	intervalMs int
	maxBatch   int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Scheduler. intervalMs defaults to 200ms, maxBatch to 100.
func New(s store.Store, agg *aggregator.Aggregator, intervalMs int, maxBatch int64) *Scheduler {
	if intervalMs <= 0 {
		intervalMs = 200
	}
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &Scheduler{store: s, aggregator: agg, intervalMs: intervalMs, maxBatch: maxBatch}
}

// Start launches the scheduler loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish its current tick.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("scheduler: stopped")
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler: tick failed, backing off")
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	now := float64(time.Now().UnixNano()) / 1e9
	expired, err := s.store.PopExpired(ctx, now, s.maxBatch)
	if err != nil {
		return err
	}
	for _, chatID := range expired {
		id, err := s.aggregator.Flush(ctx, chatID, now)
		if err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Msg("scheduler: flush failed")
			continue
		}
		if id == "" {
			// Deadline existed for a chat with no active series (already
			// flushed by a racing author-switch); silently dropped.
			continue
		}
	}
	return nil
}
