package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
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

type noopClassifier struct{}

func (noopClassifier) Classify(ctx context.Context, text string) (classifier.Classification, error) {
	return classifier.Classification{Class: 1, Confidence: 1}, nil
}

func (noopClassifier) MatchAnswer(ctx context.Context, candidates []classifier.Candidate, answer string) classifier.MatchResult {
	return classifier.MatchResult{}
}

// testMetrics is shared by every test server: NewMetricsRegistry registers
// on the default Prometheus registry, which accepts each collector once.
var testMetrics = NewMetricsRegistry()

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	agg := aggregator.New(mem, func() float64 { return 100 })
	chats := config.ChatsConfig{
		"chat1": {
			InputChatName: "support",
			Pinger:        config.PingerConfig{Enabled: true, WhitelistRaw: []string{"@op"}},
		},
	}
	router := ingress.New(chats, mem, agg, noopWorkerPool{}, noopClassifier{}, monitor.NewSilenceClock(), "BOT1", func() float64 { return 100 })
	srv := NewServer(DefaultServerConfig(0), router, mem, "secret-token", testMetrics)
	return srv, mem
}

func TestHealthzOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestProcessRequestRejectsMissingBearer(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(ingress.IncomingEvent{MessagesChatID: "chat1"})
	req := httptest.NewRequest("POST", "/process_request", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, 403, rec.Code)
}

func TestProcessRequestRejectsWrongBearer(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(ingress.IncomingEvent{MessagesChatID: "chat1"})
	req := httptest.NewRequest("POST", "/process_request", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, 403, rec.Code)
}

func TestProcessRequestHappyPath(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(ingress.IncomingEvent{
		MessagesID:        "m1",
		MessagesUserID:    "U1",
		MessagesUsername:  "op",
		MessagesDate:      "2025-01-17 10:00:00",
		MessagesChatID:    "chat1",
		TextHistoriesText: "hello",
	})
	req := httptest.NewRequest("POST", "/process_request", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var result ingress.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, ingress.StatusInProcessing, result.Status)
}

func TestProcessRequestMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/process_request", bytes.NewReader([]byte("not json")))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}
