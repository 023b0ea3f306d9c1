// Package breaker wraps sony/gobreaker for the outbound bridges.
package breaker

import (
	"errors"
	"time"

	"github.com/atividade/backend/internal/apperr"
	"github.com/atividade/backend/internal/metrics"
	"github.com/atividade/backend/pkg/logger"
	gobreaker "github.com/sony/gobreaker/v2"
)

type Settings struct {
	// Consecutive upstream failures before the circuit opens.
	FailureThreshold uint32
	// How long the circuit stays open before a probe is let through.
	OpenTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[interface{}]
}

// New builds a breaker that only counts KindUpstreamUnavailable (and
// unclassified) errors as failures. A rejected login is a healthy upstream.
func New(name string, s Settings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultSettings().FailureThreshold
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = DefaultSettings().OpenTimeout
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch apperr.KindOf(err) {
			case apperr.KindUpstreamUnavailable, apperr.KindInternal:
				return false
			default:
				return true
			}
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change", map[string]interface{}{
				"name": name,
				"from": stateToString(from),
				"to":   stateToString(to),
			})
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &Breaker{name: name, cb: cb}
}

// Do runs fn under the breaker. An open circuit is reported as
// KindUpstreamUnavailable without calling fn.
func (b *Breaker) Do(op string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Unavailable(op, err)
	}
	return err
}

func (b *Breaker) State() string {
	return stateToString(b.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
