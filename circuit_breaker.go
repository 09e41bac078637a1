package cachewire

import (
	"time"

	"github.com/pior/cachewire/wire"
	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerConfig returns a function that creates circuit breakers for servers.
// This is a helper for common use cases.
//
// Only errors that poison the connection count as failures: a server answering with an
// exception, or a message rejected locally for its size, says nothing about its health.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(string) *gobreaker.CircuitBreaker[*wire.Message] {
	return func(serverAddr string) *gobreaker.CircuitBreaker[*wire.Message] {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !wire.ShouldCloseConnection(err)
			},
		}
		return gobreaker.NewCircuitBreaker[*wire.Message](settings)
	}
}
