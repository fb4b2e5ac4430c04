// Package worker drains raw ingress events into the aggregator with
// at-least-once ack semantics: one goroutine per active chat, started
// lazily by the ingress router.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/store"
)

// WindowProvider resolves the current burst-fusion window for a chat; it is
// consulted on every raw event so ingress-side config changes apply without
// restarting the worker.
type WindowProvider func(chatID string) int

// Pool tracks one goroutine per active chat and ensures each chat's consumer
// group exists exactly once.
type Pool struct {
	store      store.Store
	aggregator *aggregator.Aggregator
	window     WindowProvider
	maxBatch   int64
	blockMs    int

	mu      sync.Mutex
	stopFns map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool builds a worker Pool.
func NewPool(s store.Store, agg *aggregator.Aggregator, window WindowProvider, maxBatch int64, blockMs int) *Pool {
	if maxBatch <= 0 {
		maxBatch = 64
	}
	if blockMs <= 0 {
		blockMs = 5000
	}
	return &Pool{
		store:      s,
		aggregator: agg,
		window:     window,
		maxBatch:   maxBatch,
		blockMs:    blockMs,
		stopFns:    make(map[string]context.CancelFunc),
	}
}

// EnsureRunning starts the chat's worker if it isn't already running.
// Idempotent: safe to call on every incoming event for the chat.
func (p *Pool) EnsureRunning(parent context.Context, chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stopFns[chatID]; ok {
		return
	}
	if err := p.store.EnsureConsumerGroup(parent, chatID); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("worker: ensure consumer group failed")
	}

	ctx, cancel := context.WithCancel(parent)
	p.stopFns[chatID] = cancel
	p.wg.Add(1)
	go p.run(ctx, chatID)
}

// IsRunning reports whether a worker goroutine is active for chatID.
func (p *Pool) IsRunning(chatID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.stopFns[chatID]
	return ok
}

// RunningChats returns the chat ids with an active worker.
func (p *Pool) RunningChats() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.stopFns))
	for chatID := range p.stopFns {
		out = append(out, chatID)
	}
	return out
}

// Stop stops a single chat's worker. A terminated worker's in-memory state
// is discarded; the underlying stream is untouched.
func (p *Pool) Stop(chatID string) {
	p.mu.Lock()
	cancel, ok := p.stopFns[chatID]
	if ok {
		delete(p.stopFns, chatID)
	}
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll stops every running worker and waits for them to exit.
func (p *Pool) StopAll() {
	p.mu.Lock()
	for chatID, cancel := range p.stopFns {
		cancel()
		delete(p.stopFns, chatID)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, chatID string) {
	defer p.wg.Done()
	consumer := fmt.Sprintf("worker_%s_%s", chatID, uuid.NewString()[:8])

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("chat_id", chatID).Msg("worker: stopped")
			return
		default:
		}

		events, err := p.store.ReadNewRaw(ctx, chatID, consumer, p.maxBatch, p.blockMs)
		if err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Msg("worker: read failed, retrying")
			time.Sleep(time.Second)
			continue
		}

		for _, e := range events {
			// Unacked on failure: the same event is retried after a 1s
			// backoff until it succeeds or the worker stops, so a failing
			// handler redelivers rather than drops.
			for {
				err := p.aggregator.ProcessMessage(ctx, chatID, e, p.window(chatID))
				if err == nil {
					break
				}
				log.Error().Err(err).Str("chat_id", chatID).Str("stream_id", e.StreamID).Msg("worker: process failed, will redeliver")
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
			}
			if err := p.store.AckRaw(ctx, chatID, e.StreamID); err != nil {
				log.Error().Err(err).Str("chat_id", chatID).Str("stream_id", e.StreamID).Msg("worker: ack failed")
			}
		}
	}
}
