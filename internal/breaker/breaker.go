// Package breaker wraps outbound calls (LLM, Kafka-Sender) with a circuit
// breaker so a failing downstream can't pile up latency on every caller.
package breaker

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker is a named circuit breaker around a fallible outbound call.
type Breaker struct{ cb *cb.CircuitBreaker }

// New builds a Breaker that trips after 3 consecutive failures, or once a
// window of at least 20 requests sees a failure rate above 5%.
func New(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState while tripped.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State reports the current breaker state.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
