// Package ingress implements the router: the single entry point that turns
// an inbound event into an admission decision, a user-type classification,
// and either a raw-stream append or a synchronous merchant/pp resolution.
package ingress

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/aggregator"
	"github.com/Humphreey/pinokio/internal/classifier"
	"github.com/Humphreey/pinokio/internal/config"
	"github.com/Humphreey/pinokio/internal/monitor"
	"github.com/Humphreey/pinokio/internal/store"
	"github.com/Humphreey/pinokio/internal/timewindow"
)

// IncomingEvent is the inbound event body. Unknown JSON fields are ignored
// by the decoder upstream.
type IncomingEvent struct {
	MessagesID        string  `json:"messages__id"`
	MessagesUserID    string  `json:"messages__user_id"`
	MessagesDate      string  `json:"messages__date"`
	TextHistoriesID   string  `json:"text_histories__id"`
	MessagesChatID    string  `json:"messages__chat_id"`
	ParentMessageID   *string `json:"messages__parent_message_id,omitempty"`
	MessagesUsername  string  `json:"messages__username,omitempty"`
	TextHistoriesText string  `json:"text_histories__text,omitempty"`
	ChangeID          *string `json:"text_histories__change_id,omitempty"`
}

// Status is one of the router's admission/processing outcomes.
type Status string

const (
	StatusInProcessing Status = "in_processing"
	StatusIgnored      Status = "ignored"
	StatusBlocked      Status = "blocked"
)

// Result is the router's response, serialized verbatim by the HTTP layer.
type Result struct {
	Status    Status  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	MessageID *string `json:"message_id,omitempty"`
}

func ignored(reason string) Result { return Result{Status: StatusIgnored, Reason: reason} }
func blocked(reason string) Result { return Result{Status: StatusBlocked, Reason: reason} }
func processing(id string) Result {
	return Result{Status: StatusInProcessing, MessageID: &id}
}

// Clock returns the current Unix timestamp in seconds.
type Clock func() float64

// Classifier is the subset of *classifier.Client the router depends on,
// narrowed to an interface so tests can substitute a fake LLM.
type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Classification, error)
	MatchAnswer(ctx context.Context, candidates []classifier.Candidate, answer string) classifier.MatchResult
}

// WorkerPool is the subset of *worker.Pool the router depends on.
type WorkerPool interface {
	EnsureRunning(parent context.Context, chatID string)
}

// Router wires the ingress decision tree to its collaborators.
type Router struct {
	chats      config.ChatsConfig
	store      store.Store
	aggregator *aggregator.Aggregator
	workers    WorkerPool
	classifier Classifier
	silence    *monitor.SilenceClock
	defaultBot string
	now        Clock
}

// New builds a Router.
func New(chats config.ChatsConfig, s store.Store, agg *aggregator.Aggregator, workers WorkerPool, cls Classifier, silence *monitor.SilenceClock, defaultUserIDBot string, now Clock) *Router {
	return &Router{
		chats:      chats,
		store:      s,
		aggregator: agg,
		workers:    workers,
		classifier: cls,
		silence:    silence,
		defaultBot: defaultUserIDBot,
		now:        now,
	}
}

// Handle runs the ordered admission and routing decision for one event.
func (r *Router) Handle(ctx context.Context, ev IncomingEvent) (Result, error) {
	chatID := ev.MessagesChatID

	// 1. Chat known?
	cfg, ok := r.chats[chatID]
	if !ok {
		return ignored("chat_not_found"), nil
	}

	// 2. Time window?
	gate := timewindow.Gate{Enabled: cfg.Pinger.Enabled, StartTime: cfg.Pinger.StartTime, EndTime: cfg.Pinger.EndTime, Days: cfg.Pinger.Days}
	ok2, err := timewindow.ShouldProcessByTime(ev.MessagesDate, gate)
	if err != nil {
		return Result{}, fmt.Errorf("ingress: time window check: %w", err)
	}
	if !ok2 {
		return blocked("time_blocked"), nil
	}

	// 3. Edit event?
	if ev.ChangeID != nil {
		return ignored("change_message"), nil
	}

	now := r.now()

	// 4. Silence clock refresh.
	if cfg.Silencer.Enabled {
		r.silence.Touch(chatID, now)
	}

	// 5. Ensure worker + window. The worker looks up the chat's
	// redis_buffer_window_s through its window provider (backed by the same
	// chats config loaded at startup) for every event; here we only need to
	// make sure it is running.
	r.workers.EnsureRunning(ctx, chatID)

	// 6. Classify user type.
	userType, viaBotID := r.classifyUserType(ev, cfg)
	if viaBotID && !cfg.Pinger.BotEnabled {
		return ignored("bot_disabled"), nil
	}

	if userType == "merchant" {
		return r.merchantPath(ctx, chatID, ev, now)
	}
	return r.ppPath(ctx, chatID, ev, now)
}

// classifyUserType returns the event's user type along with whether it
// matched via the bot-id branch specifically (as opposed to the whitelist
// branch) — only the bot-id branch is subject to the bot_enabled gate.
func (r *Router) classifyUserType(ev IncomingEvent, cfg config.ChatConfig) (userType string, viaBotID bool) {
	for _, handle := range cfg.Whitelist() {
		if "@"+ev.MessagesUsername == handle {
			return "pp", false
		}
	}
	if ev.MessagesUserID == r.defaultBot {
		return "pp", true
	}
	return "merchant", false
}

func (r *Router) rawEventFrom(ev IncomingEvent, userType string) store.RawEvent {
	return store.RawEvent{
		MessagesID: ev.MessagesID,
		UserID:     ev.MessagesUserID,
		Username:   ev.MessagesUsername,
		UserType:   userType,
		Text:       ev.TextHistoriesText,
	}
}

// merchantPath handles an event from a merchant: fold it into an active
// series belonging to the same user, merge it onto the latest flushed
// merchant message, or classify it fresh and append a raw event.
func (r *Router) merchantPath(ctx context.Context, chatID string, ev IncomingEvent, now float64) (Result, error) {
	series, err := r.store.GetSeries(ctx, chatID)
	if err != nil {
		return Result{}, fmt.Errorf("ingress: merchant path get series: %w", err)
	}
	if series != nil && series.UserID == ev.MessagesUserID {
		id, err := r.store.AppendRaw(ctx, chatID, r.rawEventFrom(ev, "merchant"))
		if err != nil {
			return Result{}, fmt.Errorf("ingress: merchant append raw: %w", err)
		}
		return processing(id), nil
	}

	id, err := r.aggregator.AppendToLastLong(ctx, chatID, ev.MessagesUserID, ev.MessagesUsername, ev.TextHistoriesText, now)
	if err != nil {
		return Result{}, fmt.Errorf("ingress: append_to_last_long: %w", err)
	}
	if id != "" {
		return processing(id), nil
	}

	class, err := r.classifier.Classify(ctx, ev.TextHistoriesText)
	if err != nil {
		return Result{}, fmt.Errorf("ingress: classify: %w", err)
	}
	if class.Class == 0 {
		return ignored("no_response_needed"), nil
	}

	id, err = r.store.AppendRaw(ctx, chatID, r.rawEventFrom(ev, "merchant"))
	if err != nil {
		return Result{}, fmt.Errorf("ingress: merchant append raw after classify: %w", err)
	}
	return processing(id), nil
}

// ppPath handles an event from an operator/whitelisted user: a parent-reply
// resolves its target final message directly, otherwise the answer is
// matched against outstanding merchant finals via the classifier.
func (r *Router) ppPath(ctx context.Context, chatID string, ev IncomingEvent, now float64) (Result, error) {
	id, err := r.store.AppendRaw(ctx, chatID, r.rawEventFrom(ev, "pp"))
	if err != nil {
		return Result{}, fmt.Errorf("ingress: pp append raw: %w", err)
	}

	if ev.ParentMessageID != nil {
		finals, err := r.store.ListFinal(ctx, chatID, 100)
		if err != nil {
			return Result{}, fmt.Errorf("ingress: pp list final: %w", err)
		}
		for _, f := range finals {
			if f.MessagesID == *ev.ParentMessageID {
				if err := r.store.DeleteFinal(ctx, chatID, f.StreamID); err != nil {
					log.Error().Err(err).Str("chat_id", chatID).Msg("ingress: delete_final (parent reply) failed")
				}
				break
			}
		}
		if err := r.store.DeleteRaw(ctx, chatID, id); err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Msg("ingress: delete raw (parent reply) failed")
		}
		return processing(id), nil
	}

	if err := r.store.DeleteRaw(ctx, chatID, id); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("ingress: delete raw (unlinked reply) failed")
	}

	finals, err := r.store.ListFinal(ctx, chatID, 50)
	if err != nil {
		return Result{}, fmt.Errorf("ingress: pp match_answer list final: %w", err)
	}
	var candidates []classifier.Candidate
	for _, f := range finals {
		if f.UserType == "merchant" {
			candidates = append(candidates, classifier.Candidate{StreamID: f.StreamID, Text: f.Text})
		}
	}
	match := r.classifier.MatchAnswer(ctx, candidates, ev.TextHistoriesText)
	if match.MatchedMessageID != nil {
		if err := r.store.DeleteFinal(ctx, chatID, *match.MatchedMessageID); err != nil {
			log.Error().Err(err).Str("chat_id", chatID).Msg("ingress: delete_final (match_answer) failed")
		}
	}
	return processing(id), nil
}
