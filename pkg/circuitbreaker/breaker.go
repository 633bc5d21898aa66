package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewCircuitBreaker trips after three requests in a minute with at least 60%
// failures and stays open for timeout.
func NewCircuitBreaker(nameof string, timeout time.Duration, log *zap.Logger) *gobreaker.CircuitBreaker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        nameof,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
