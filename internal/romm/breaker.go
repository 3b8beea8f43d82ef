// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package romm

import (
	"errors"
	"io"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/metrics"
)

// breaker guards the remote server with a circuit breaker so a dead or
// overloaded server does not stall every sync pass on timeouts.
//
// The breaker uses real time (via sony/gobreaker) for its interval and
// timeout calculations. Tests should fake the HTTP layer, not the breaker.
type breaker struct {
	cb   *gobreaker.CircuitBreaker[io.ReadCloser]
	name string
}

// newBreaker creates a circuit breaker for one remote server.
// Opens after a 60% failure rate over a minimum of 10 requests,
// waits 2 minutes before probing again with up to 3 requests.
func newBreaker(name string) *breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // closed

	cb := gobreaker.NewCircuitBreaker[io.ReadCloser](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},

		// Auth failures are the caller's problem, not server health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsAuthError(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &breaker{cb: cb, name: name}
}

// execute runs one request through the breaker.
func (b *breaker) execute(fn func() (io.ReadCloser, error)) (io.ReadCloser, error) {
	body, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Str("breaker", b.name).Msg("[CIRCUIT BREAKER] Request rejected")
		}
		return nil, err
	}
	return body, nil
}

// IsCircuitOpen reports whether err was produced by an open circuit rather
// than by the request itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func asStatusError(err error, target **StatusError) bool {
	return errors.As(err, target)
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
