// Package app wires the sidecar's components into a single long-lived
// instance: the object an HTTP handler receives by reference, started once
// at process startup and torn down once at shutdown.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/breaker"
	"github.com/Humphreey/pinokio/internal/classifier"
	"github.com/Humphreey/pinokio/internal/config"
	"github.com/Humphreey/pinokio/internal/ingress"
	"github.com/Humphreey/pinokio/internal/kafkasender"
	"github.com/Humphreey/pinokio/internal/monitor"
	"github.com/Humphreey/pinokio/internal/ratelimit"
	"github.com/Humphreey/pinokio/internal/scheduler"
	"github.com/Humphreey/pinokio/internal/store"
	"github.com/Humphreey/pinokio/internal/worker"
)

// Coordinator owns every long-running component and enforces a fixed
// shutdown order: cancel the monitor, then flush all pending series, then
// stop all workers.
type Coordinator struct {
	Store      store.Store
	Aggregator *aggregator.Aggregator
	Scheduler  *scheduler.Scheduler
	Monitor    *monitor.Monitor
	Workers    *worker.Pool
	Router     *ingress.Router
	Silence    *monitor.SilenceClock

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds every component from loaded configuration. It does not start
// any goroutine; call Start for that.
func New(settings *config.Settings, redisCfg *config.RedisConfig, chats config.ChatsConfig, prompts *config.PromptsConfig) *Coordinator {
	s := store.NewRedis(redisCfg)

	agg := aggregator.New(s, nil)

	sched := scheduler.New(s, agg, redisCfg.Scheduler.IntervalMs, 100)

	llmBreaker := breaker.New("llm")
	kafkaBreaker := breaker.New("kafka-sender")
	limiter := ratelimit.New(5, 10)

	cls := classifier.New(settings, prompts, llmBreaker, limiter)
	sender := kafkasender.New(settings, kafkaBreaker)

	windowProvider := func(chatID string) int {
		if cfg, ok := chats[chatID]; ok {
			return cfg.WindowS()
		}
		return redisCfg.Aggregation.WindowSecondsDefault
	}
	workers := worker.NewPool(s, agg, windowProvider, int64(redisCfg.Workers.MaxBatch), redisCfg.Workers.BlockMs)

	silence := monitor.NewSilenceClock()
	mon := monitor.New(s, chats, workers.RunningChats, sender, silence, settings.CheckIntervalS, wallClock)

	router := ingress.New(chats, s, agg, workers, cls, silence, settings.DefaultUserBot, wallClock)

	return &Coordinator{
		Store:      s,
		Aggregator: agg,
		Scheduler:  sched,
		Monitor:    mon,
		Workers:    workers,
		Router:     router,
		Silence:    silence,
	}
}

// Start launches the scheduler and escalation monitor. Per-chat workers are
// started lazily by the ingress router as chats become active.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.Scheduler.Start(c.ctx)
	c.Monitor.Start(c.ctx)
	log.Info().Msg("coordinator: started")
}

// Shutdown tears components down in a fixed order: cancel the monitor,
// then flush all pending series, then stop all workers. Best-effort: flush
// failures are logged and never block termination.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.Monitor.Stop()
	c.Scheduler.Stop()

	flushed, err := c.Aggregator.FlushAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("coordinator: flush_all failed during shutdown")
	} else {
		log.Info().Int("chats_flushed", len(flushed)).Msg("coordinator: flush_all complete")
	}

	c.Workers.StopAll()
	if c.cancel != nil {
		c.cancel()
	}
	log.Info().Msg("coordinator: shutdown complete")
}

func wallClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
