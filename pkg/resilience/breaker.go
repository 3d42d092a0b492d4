package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// ResolverBreaker guards repeated queries against one upstream (a DNS
// resolver or the acme-dns health endpoint) during a long propagation wait,
// so a dead upstream is skipped instead of timing out on every poll.
type ResolverBreaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewResolverBreaker creates a breaker that opens after three consecutive
// failures and probes again after thirty seconds.
func NewResolverBreaker(name string) *ResolverBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &ResolverBreaker{
		cb:   gobreaker.NewCircuitBreaker[any](settings),
		name: name,
	}
}

// Execute runs fn through the breaker. It returns gobreaker's open-state
// error when the upstream is currently considered down.
func (b *ResolverBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// Name returns the breaker's upstream name
func (b *ResolverBreaker) Name() string {
	return b.name
}

// IsOpen reports whether the breaker is currently rejecting requests
func (b *ResolverBreaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}
