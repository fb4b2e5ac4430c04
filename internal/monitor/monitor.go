// Package monitor implements the escalation monitor: a single global loop
// that reminds about overdue merchant messages and warns about silent
// chats, for every chat whose worker is currently running.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/config"
	"github.com/Humphreey/pinokio/internal/kafkasender"
	"github.com/Humphreey/pinokio/internal/store"
	"github.com/Humphreey/pinokio/internal/timewindow"
)

// ActiveChatsFunc reports the chat ids whose worker is currently running;
// the monitor only ever evaluates those.
type ActiveChatsFunc func() []string

// SilenceClock is the process-local `last_silence_notification` map, owned
// by the Coordinator and also written to by the ingress router on every
// incoming event.
type SilenceClock struct {
	mu sync.Mutex
	m  map[string]float64
}

// NewSilenceClock builds an empty SilenceClock.
func NewSilenceClock() *SilenceClock {
	return &SilenceClock{m: make(map[string]float64)}
}

// Touch records activity for chatID at now; the ingress router calls this
// on every incoming event when silencer.enabled.
func (c *SilenceClock) Touch(chatID string, now float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[chatID] = now
}

func (c *SilenceClock) get(chatID string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[chatID]
	return v, ok
}

// Monitor runs the periodic reminder/silence scan.
type Monitor struct {
	store       store.Store
	chats       config.ChatsConfig
	activeChats ActiveChatsFunc
	sender      *kafkasender.Sender
	silence     *SilenceClock
	interval    time.Duration
	now         func() float64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Monitor. interval is the scan period in seconds.
func New(s store.Store, chats config.ChatsConfig, activeChats ActiveChatsFunc, sender *kafkasender.Sender, silence *SilenceClock, intervalS int, now func() float64) *Monitor {
	if intervalS <= 0 {
		intervalS = 10
	}
	return &Monitor{
		store:       s,
		chats:       chats,
		activeChats: activeChats,
		sender:      sender,
		silence:     silence,
		interval:    time.Duration(intervalS) * time.Second,
		now:         now,
	}
}

// Start launches the monitor loop in its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop signals the loop to exit and waits for the in-flight tick to finish.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("monitor: stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	now := m.now()
	for _, chatID := range m.activeChats() {
		cfg, ok := m.chats[chatID]
		if !ok {
			continue
		}
		finals, err := m.store.ListFinal(ctx, chatID, 50)
		if err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Msg("monitor: list_final failed")
			continue
		}

		var merchantFinals []store.FinalMessage
		for _, f := range finals {
			if f.UserType == "merchant" {
				merchantFinals = append(merchantFinals, f)
			}
		}

		m.silenceBranch(ctx, chatID, cfg, merchantFinals, now)
		m.reminderBranch(ctx, chatID, cfg, merchantFinals, now)
	}
}

func (m *Monitor) silenceBranch(ctx context.Context, chatID string, cfg config.ChatConfig, merchantFinals []store.FinalMessage, now float64) {
	if !cfg.Silencer.Enabled {
		return
	}
	gate := timewindow.Gate{Enabled: cfg.Pinger.Enabled, StartTime: cfg.Pinger.StartTime, EndTime: cfg.Pinger.EndTime, Days: cfg.Pinger.Days}
	if !timewindow.ShouldProcessByTimeAt(secondsToTime(now), gate) {
		return
	}

	if len(merchantFinals) > 0 {
		m.silence.Touch(chatID, now)
		return
	}

	last, ok := m.silence.get(chatID)
	if ok && now-last > float64(cfg.Silencer.SilenceTimeoutSOrDefault()) {
		m.sender.SendSilence(ctx, kafkasender.SilenceParams{
			OutputChatID:    cfg.Silencer.OutputChatID,
			InputChatName:   cfg.InputChatName,
			SilenceTimeoutS: cfg.Silencer.SilenceTimeoutSOrDefault(),
		})
		m.silence.Touch(chatID, now)
	}
}

func (m *Monitor) reminderBranch(ctx context.Context, chatID string, cfg config.ChatConfig, merchantFinals []store.FinalMessage, now float64) {
	timeout := float64(cfg.MessageTimeoutS())
	for _, f := range merchantFinals {
		if now-f.EndTS <= timeout {
			continue
		}
		m.sender.SendReminder(ctx, kafkasender.ReminderParams{
			OutputChatID:    cfg.Pinger.OutputChatID,
			InputChatName:   cfg.InputChatName,
			Whitelist:       cfg.Whitelist(),
			Username:        f.Username,
			AgeSeconds:      int(now - f.EndTS),
			MessageTimeoutS: cfg.MessageTimeoutS(),
			Text:            f.Text,
		})
		if err := m.store.DeleteFinal(ctx, chatID, f.StreamID); err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Str("stream_id", f.StreamID).Msg("monitor: delete_final failed after reminder")
		}
	}
}

func secondsToTime(now float64) time.Time {
	sec := int64(now)
	nsec := int64((now - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
