// Package usecases - fallback.go tries interchangeable providers in priority order.
package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

const defaultProviderTimeout = 30 * time.Second

// FallbackChain queries providers of the same kind one after another and
// returns the first non-empty success.
type FallbackChain struct {
	providers []ports.CandidateProvider
	timeout   time.Duration
}

// NewFallbackChain creates a chain over providers in priority order.
// timeout is the budget of each single provider call.
func NewFallbackChain(timeout time.Duration, providers ...ports.CandidateProvider) *FallbackChain {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &FallbackChain{providers: providers, timeout: timeout}
}

// Providers returns the provider names in the order they are tried.
func (fc *FallbackChain) Providers() []string {
	names := make([]string, len(fc.providers))
	for i, p := range fc.providers {
		names[i] = p.Name()
	}
	return names
}

// Fetch returns the candidates of the first provider that succeeds with a
// non-empty list. Failures and empty results move on to the next provider.
// When every provider fails the result is an empty list.
func (fc *FallbackChain) Fetch(ctx context.Context, query string, maxResults int) []entities.RawCandidate {
	for _, p := range fc.providers {
		res := callProvider(ctx, p, query, maxResults, fc.timeout)
		log := logrus.WithFields(logrus.Fields{
			"provider": p.Name(),
			"query":    query,
			"status":   res.Status.String(),
		})
		if res.OK() {
			log.WithField("results", len(res.Candidates)).Info("Provider succeeded")
			return res.Candidates
		}
		if res.Err != nil {
			log = log.WithError(res.Err)
		}
		log.Warn("Provider yielded nothing, trying next")
	}
	return []entities.RawCandidate{}
}

// SearchOrEmpty calls a standalone provider under the same budget and
// empty-on-failure contract as the chain.
func SearchOrEmpty(ctx context.Context, p ports.CandidateProvider, query string, maxResults int, timeout time.Duration) []entities.RawCandidate {
	if p == nil {
		return []entities.RawCandidate{}
	}
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	res := callProvider(ctx, p, query, maxResults, timeout)
	if !res.OK() {
		if res.Err != nil {
			logrus.WithError(res.Err).WithField("provider", p.Name()).Warn("Provider search failed")
		}
		return []entities.RawCandidate{}
	}
	return res.Candidates
}

// callProvider runs one search under its own deadline. A provider that does
// not return once the deadline passes is abandoned and counted as failed.
func callProvider(ctx context.Context, p ports.CandidateProvider, query string, maxResults int, timeout time.Duration) (res entities.ProviderResult) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan entities.ProviderResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- entities.Failed(fmt.Errorf("provider %s panicked: %v", p.Name(), r))
			}
		}()
		done <- p.Search(ctx, query, maxResults)
	}()

	select {
	case res = <-done:
		return res
	case <-ctx.Done():
		return entities.Failed(fmt.Errorf("provider %s: %w", p.Name(), ctx.Err()))
	}
}
