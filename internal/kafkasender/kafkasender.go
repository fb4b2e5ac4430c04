// Package kafkasender is the outbound gateway to the Kafka-Sender HTTP
// service: it renders the two Russian operator-facing templates and POSTs
// them as a chat message. Errors are logged only; the caller never retries.
package kafkasender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/breaker"
	"github.com/Humphreey/pinokio/internal/config"
)

// Sender posts rendered messages to the Kafka-Sender gateway.
type Sender struct {
	httpClient *http.Client
	breaker    *breaker.Breaker

	baseURL       string
	bearerToken   string
	defaultUserID string
}

// New builds a Sender from settings.
func New(s *config.Settings, br *breaker.Breaker) *Sender {
	return &Sender{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		breaker:       br,
		baseURL:       s.KafkaSenderURL,
		bearerToken:   s.BearerToken,
		defaultUserID: s.DefaultUserBot,
	}
}

type sendKafkaRequest struct {
	ChatsID         string  `json:"chats__id"`
	ThreadID        *string `json:"thread_id"`
	TextHistoryText string  `json:"text_histories__text"`
	UsersID         string  `json:"users__id"`
}

// send posts a rendered text to the output chat. Failures are logged by the
// caller via the returned error; send itself never retries.
func (s *Sender) send(ctx context.Context, outputChatID, text string) error {
	body, err := json.Marshal(sendKafkaRequest{
		ChatsID:         outputChatID,
		ThreadID:        nil,
		TextHistoryText: text,
		UsersID:         s.defaultUserID,
	})
	if err != nil {
		return fmt.Errorf("kafkasender: marshal: %w", err)
	}

	call := func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send_kafka", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.bearerToken)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("kafkasender: request error: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("kafkasender: http status %d", resp.StatusCode)
		}
		return nil, nil
	}

	var execErr error
	if s.breaker != nil {
		_, execErr = s.breaker.Execute(call)
	} else {
		_, execErr = call()
	}
	return execErr
}

// ReminderParams carries the fields the reminder template interpolates.
type ReminderParams struct {
	OutputChatID    string
	InputChatName   string
	Whitelist       []string
	Username        string
	AgeSeconds      int
	MessageTimeoutS int
	Text            string
}

// SendReminder renders and sends the merchant-overdue reminder. Errors are
// logged, never propagated: the caller still deletes the final message
// (at-most-once delivery).
func (s *Sender) SendReminder(ctx context.Context, p ReminderParams) {
	whitelistStr := strings.Join(p.Whitelist, " ")
	text := fmt.Sprintf(
		"[PINOKIO] [%s] Напоминание для %s: \nСообщение от @%s висит уже %d секунд (таймаут %d):\n\nТекст сообщения:  \n%s\n",
		p.InputChatName, whitelistStr, p.Username, p.AgeSeconds, p.MessageTimeoutS, p.Text,
	)
	if err := s.send(ctx, p.OutputChatID, text); err != nil {
		log.Error().Err(err).Str("chat_id", p.OutputChatID).Msg("kafkasender: reminder send failed")
	}
}

// SilenceParams carries the fields the silence template interpolates.
type SilenceParams struct {
	OutputChatID    string
	InputChatName   string
	SilenceTimeoutS int
}

// SendSilence renders and sends the chat-silence notification.
func (s *Sender) SendSilence(ctx context.Context, p SilenceParams) {
	text := fmt.Sprintf(
		"[PINOKIO] [%s] Уведомление о тишине! \nВо входящем чате нет сообщений в очереди уже %d секунд.\nВозможно, стоит проверить активность в чате.",
		p.InputChatName, p.SilenceTimeoutS,
	)
	if err := s.send(ctx, p.OutputChatID, text); err != nil {
		log.Error().Err(err).Str("chat_id", p.OutputChatID).Msg("kafkasender: silence send failed")
	}
}
