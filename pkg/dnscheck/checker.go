// Package dnscheck verifies that the _acme-challenge CNAME for a domain has
// propagated to the public resolvers and points at the delegated acme-dns
// name. This is the automated counterpart of the manual CNAME step the hook
// prints on first registration.
package dnscheck

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/hook"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/resilience"
)

// ErrNotPropagated is returned while the CNAME is missing or points at the
// wrong target
var ErrNotPropagated = errors.New("CNAME record not propagated")

// Checker resolves CNAME records against a fixed set of resolvers. Each
// resolver sits behind a circuit breaker so an unreachable one does not slow
// down a long wait.
type Checker struct {
	resolvers []string
	breakers  map[string]*resilience.ResolverBreaker
}

// NewChecker creates a checker using well-known public resolvers
func NewChecker() *Checker {
	return NewCheckerWithResolvers([]string{
		"1.1.1.1:53", // Cloudflare
		"8.8.8.8:53", // Google
		"9.9.9.9:53", // Quad9
	})
}

// NewCheckerWithResolvers creates a checker with an explicit resolver list
func NewCheckerWithResolvers(resolvers []string) *Checker {
	breakers := make(map[string]*resilience.ResolverBreaker, len(resolvers))
	for _, r := range resolvers {
		breakers[r] = resilience.NewResolverBreaker(r)
	}
	return &Checker{
		resolvers: resolvers,
		breakers:  breakers,
	}
}

// CheckCNAME reports whether the _acme-challenge CNAME for domain resolves
// to expectedTarget on at least one resolver
func (c *Checker) CheckCNAME(ctx context.Context, domain, expectedTarget string) (bool, error) {
	name := hook.ChallengePrefix + strings.TrimPrefix(domain, "*.")
	want := strings.TrimSuffix(expectedTarget, ".")

	var lastErr error
	for _, resolver := range c.resolvers {
		var cname string
		err := c.breakers[resolver].Execute(func() error {
			var lookupErr error
			cname, lookupErr = lookupCNAME(ctx, name, resolver)
			return lookupErr
		})
		if err != nil {
			lastErr = err
			continue
		}

		if strings.TrimSuffix(cname, ".") == want {
			return true, nil
		}
	}

	return false, lastErr
}

// Wait polls until the CNAME has propagated, with exponential backoff. The
// onRetry callback (optional) is invoked before each wait.
func (c *Checker) Wait(ctx context.Context, domain, expectedTarget string, timeout time.Duration, onRetry func(err error, next time.Duration)) error {
	opts := []resilience.WaitOption{
		resilience.WithMaxElapsed(timeout),
	}
	if onRetry != nil {
		opts = append(opts, resilience.WithOnRetry(onRetry))
	}

	return resilience.WaitFor(ctx, func() error {
		ok, err := c.CheckCNAME(ctx, domain, expectedTarget)
		if ok {
			return nil
		}
		if err != nil {
			return err
		}
		return ErrNotPropagated
	}, opts...)
}

// lookupCNAME queries one specific resolver instead of the system one, so
// the answer reflects public DNS and not a local cache
func lookupCNAME(ctx context.Context, name, resolver string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{
				Timeout: 5 * time.Second,
			}
			return d.DialContext(ctx, "udp", resolver)
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return r.LookupCNAME(ctx, name)
}
