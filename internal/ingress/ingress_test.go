package ingress_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/classifier"
	"github.com/Humphreey/pinokio/internal/config"
	"github.com/Humphreey/pinokio/internal/ingress"
	"github.com/Humphreey/pinokio/internal/monitor"
	"github.com/Humphreey/pinokio/internal/store"
)

type noopWorkerPool struct{}

func (noopWorkerPool) EnsureRunning(ctx context.Context, chatID string) {}

type fakeClassifier struct {
	class  int
	match  *string
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (classifier.Classification, error) {
	f.calls++
	return classifier.Classification{Class: f.class, Confidence: 0.9}, nil
}

func (f *fakeClassifier) MatchAnswer(ctx context.Context, candidates []classifier.Candidate, answer string) classifier.MatchResult {
	return classifier.MatchResult{MatchedMessageID: f.match}
}

func baseChatConfig() config.ChatConfig {
	return config.ChatConfig{
		InputChatName: "support",
		Pinger: config.PingerConfig{
			WhitelistRaw:       []string{"@opA"},
			BotEnabled:         false,
			Enabled:            true,
			RedisBufferWindowS: 2,
		},
		Silencer: config.SilencerConfig{Enabled: false},
	}
}

func newRouter(t *testing.T, mem *store.Memory, chats config.ChatsConfig, cls ingress.Classifier) *ingress.Router {
	t.Helper()
	agg := aggregator.New(mem, func() float64 { return 100 })
	return ingress.New(chats, mem, agg, noopWorkerPool{}, cls, monitor.NewSilenceClock(), "BOT1", func() float64 { return 100 })
}

// TestWhitelistClassification is scenario 1.
func TestWhitelistClassification(t *testing.T) {
	mem := store.NewMemory()
	chats := config.ChatsConfig{"chat1": baseChatConfig()}
	r := newRouter(t, mem, chats, &fakeClassifier{})

	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesID:        "m1",
		MessagesUserID:    "U1",
		MessagesUsername:  "opA",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		TextHistoriesText: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusInProcessing, res.Status)
	require.NotNil(t, res.MessageID)
	assert.NotEmpty(t, *res.MessageID)
}

// TestBotDisabled is scenario 2.
func TestBotDisabled(t *testing.T) {
	mem := store.NewMemory()
	cfg := baseChatConfig()
	cfg.Pinger.BotEnabled = false
	chats := config.ChatsConfig{"chat1": cfg}
	r := newRouter(t, mem, chats, &fakeClassifier{})

	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesID:        "m1",
		MessagesUserID:    "BOT1",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		TextHistoriesText: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusIgnored, res.Status)
	assert.Equal(t, "bot_disabled", res.Reason)

	raw, _ := mem.ReadNewRaw(context.Background(), "chat1", "c1", 10, 0)
	assert.Empty(t, raw)
}

// TestWhitelistedUserSharingBotIDIsNotBotDisabled covers the case where a
// whitelisted operator's user_id happens to equal the configured bot id:
// the whitelist match must win, so bot_enabled must not apply.
func TestWhitelistedUserSharingBotIDIsNotBotDisabled(t *testing.T) {
	mem := store.NewMemory()
	cfg := baseChatConfig()
	cfg.Pinger.BotEnabled = false
	chats := config.ChatsConfig{"chat1": cfg}
	r := newRouter(t, mem, chats, &fakeClassifier{})

	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesID:        "m1",
		MessagesUserID:    "BOT1",
		MessagesUsername:  "opA",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		TextHistoriesText: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusInProcessing, res.Status)
}

// TestChatNotFound covers step 1.
func TestChatNotFound(t *testing.T) {
	mem := store.NewMemory()
	r := newRouter(t, mem, config.ChatsConfig{}, &fakeClassifier{})

	res, err := r.Handle(context.Background(), ingress.IncomingEvent{MessagesChatID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusIgnored, res.Status)
	assert.Equal(t, "chat_not_found", res.Reason)
}

// TestEditEventIgnored covers step 3.
func TestEditEventIgnored(t *testing.T) {
	mem := store.NewMemory()
	chats := config.ChatsConfig{"chat1": baseChatConfig()}
	r := newRouter(t, mem, chats, &fakeClassifier{})

	changeID := "c1"
	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesChatID: "chat1",
		MessagesDate:   "2025-01-17 10:00:00",
		ChangeID:       &changeID,
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusIgnored, res.Status)
	assert.Equal(t, "change_message", res.Reason)
}

// TestMerchantClassifiedZeroIsIgnored covers 4.G step 7's classify(class=0) branch.
func TestMerchantClassifiedZeroIsIgnored(t *testing.T) {
	mem := store.NewMemory()
	chats := config.ChatsConfig{"chat1": baseChatConfig()}
	r := newRouter(t, mem, chats, &fakeClassifier{class: 0})

	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesID:        "m1",
		MessagesUserID:    "M1",
		MessagesUsername:  "merchant_joe",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		TextHistoriesText: "spam",
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusIgnored, res.Status)
	assert.Equal(t, "no_response_needed", res.Reason)
}

// TestMerchantClassifiedOneAppendsRaw covers the class=1 acceptance branch.
func TestMerchantClassifiedOneAppendsRaw(t *testing.T) {
	mem := store.NewMemory()
	chats := config.ChatsConfig{"chat1": baseChatConfig()}
	r := newRouter(t, mem, chats, &fakeClassifier{class: 1})

	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesID:        "m1",
		MessagesUserID:    "M1",
		MessagesUsername:  "merchant_joe",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		TextHistoriesText: "when will my payment arrive",
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusInProcessing, res.Status)

	raw, err := mem.ReadNewRaw(context.Background(), "chat1", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "merchant", raw[0].UserType)
}

// TestPPParentReplyResolvesFinal is the "parent-reply resolves question" law.
func TestPPParentReplyResolvesFinal(t *testing.T) {
	mem := store.NewMemory()
	chats := config.ChatsConfig{"chat1": baseChatConfig()}
	r := newRouter(t, mem, chats, &fakeClassifier{})

	_, err := mem.AppendFinal(context.Background(), "chat1", store.FinalMessage{
		MessagesID: "parent-msg", UserType: "merchant", Text: "когда будет оплата?",
	})
	require.NoError(t, err)

	parentID := "parent-msg"
	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesID:        "reply-1",
		MessagesUserID:    "U1",
		MessagesUsername:  "opA",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		ParentMessageID:   &parentID,
		TextHistoriesText: "оплата прошла",
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusInProcessing, res.Status)

	finals, err := mem.ListFinal(context.Background(), "chat1", 10)
	require.NoError(t, err)
	assert.Empty(t, finals, "parent final must be deleted")

	raw, err := mem.ReadNewRaw(context.Background(), "chat1", "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, raw, "pp raw is deleted after synchronous resolution")
}

// TestAnswerMatching is scenario 6.
func TestAnswerMatching(t *testing.T) {
	mem := store.NewMemory()
	chats := config.ChatsConfig{"chat1": baseChatConfig()}

	streamID, err := mem.AppendFinal(context.Background(), "chat1", store.FinalMessage{
		UserType: "merchant", Text: "когда будет оплата?",
	})
	require.NoError(t, err)

	matched := streamID
	r := newRouter(t, mem, chats, &fakeClassifier{match: &matched})

	res, err := r.Handle(context.Background(), ingress.IncomingEvent{
		MessagesID:        "reply-1",
		MessagesUserID:    "U1",
		MessagesUsername:  "opA",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		TextHistoriesText: "оплата прошла",
	})
	require.NoError(t, err)
	assert.Equal(t, ingress.StatusInProcessing, res.Status)
	require.NotNil(t, res.MessageID)

	finals, err := mem.ListFinal(context.Background(), "chat1", 10)
	require.NoError(t, err)
	assert.Empty(t, finals, "matched final is deleted")

	raw, err := mem.ReadNewRaw(context.Background(), "chat1", "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, raw, "pp raw is deleted after synchronous match")
}
