package monitor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/config"
	"github.com/Humphreey/pinokio/internal/kafkasender"
	"github.com/Humphreey/pinokio/internal/monitor"
	"github.com/Humphreey/pinokio/internal/store"
)

type recordingGateway struct {
	mu     sync.Mutex
	server *httptest.Server
	texts  []string
}

func newRecordingGateway() *recordingGateway {
	g := &recordingGateway{}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.texts = append(g.texts, r.URL.Path)
		g.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	return g
}

func (g *recordingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.texts)
}

func chatConfig(silencerEnabled bool, timeoutS int) config.ChatConfig {
	return config.ChatConfig{
		InputChatName: "support",
		Pinger: config.PingerConfig{
			Enabled:         true,
			MessageTimeoutS: timeoutS,
		},
		Silencer: config.SilencerConfig{Enabled: silencerEnabled, SilenceTimeoutS: 5},
	}
}

// TestReminderFiresForOverdueMerchantFinal covers the unconditional
// reminder branch: it fires regardless of the working-hours gate.
func TestReminderFiresForOverdueMerchantFinal(t *testing.T) {
	gw := newRecordingGateway()
	defer gw.server.Close()

	mem := store.NewMemory()
	ctx := context.Background()
	_, err := mem.AppendFinal(ctx, "chat1", store.FinalMessage{
		UserType: "merchant", Username: "joe", Text: "when is my payout", EndTS: 0,
	})
	require.NoError(t, err)

	settings := &config.Settings{KafkaSenderURL: gw.server.URL, BearerToken: "t", DefaultUserBot: "BOT1"}
	sender := kafkasender.New(settings, nil)
	chats := config.ChatsConfig{"chat1": chatConfig(false, 10)}

	m := monitor.New(mem, chats, func() []string { return []string{"chat1"} }, sender, monitor.NewSilenceClock(), 1, func() float64 { return 100 })
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool { return gw.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	finals, err := mem.ListFinal(ctx, "chat1", 10)
	require.NoError(t, err)
	assert.Empty(t, finals, "reminded final is deleted")
}

// TestSilenceNotificationGatedByWorkingHours: silence notifications only
// fire within the configured working-hours window.
func TestSilenceNotificationGatedByWorkingHours(t *testing.T) {
	gw := newRecordingGateway()
	defer gw.server.Close()

	mem := store.NewMemory()
	settings := &config.Settings{KafkaSenderURL: gw.server.URL, BearerToken: "t", DefaultUserBot: "BOT1"}
	sender := kafkasender.New(settings, nil)

	cfg := chatConfig(true, 1000)
	cfg.Pinger.Enabled = false // gate always blocked
	chats := config.ChatsConfig{"chat1": cfg}

	sc := monitor.NewSilenceClock()
	sc.Touch("chat1", 0)

	m := monitor.New(mem, chats, func() []string { return []string{"chat1"} }, sender, sc, 1, func() float64 { return 100 })
	m.Start(context.Background())
	defer m.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, gw.count(), "gate disabled, no silence notification should fire")
}

func TestSilenceNotificationFiresAfterTimeout(t *testing.T) {
	gw := newRecordingGateway()
	defer gw.server.Close()

	mem := store.NewMemory()
	settings := &config.Settings{KafkaSenderURL: gw.server.URL, BearerToken: "t", DefaultUserBot: "BOT1"}
	sender := kafkasender.New(settings, nil)

	chats := config.ChatsConfig{"chat1": chatConfig(true, 1000)}

	sc := monitor.NewSilenceClock()
	sc.Touch("chat1", 0) // last activity at t=0

	m := monitor.New(mem, chats, func() []string { return []string{"chat1"} }, sender, sc, 1, func() float64 { return 100 })
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool { return gw.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
