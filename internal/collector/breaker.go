package collector

import (
	"context"
	"errors"
	"time"

	"github.com/carivox/voicerunner/internal/resilience"
	"github.com/carivox/voicerunner/internal/session"
)

// BreakerStore wraps a [Store] with a [resilience.Breaker] so a degraded
// backend fails fast instead of stalling every upload. Duplicate-record
// errors pass through without counting as failures.
type BreakerStore struct {
	inner   Store
	breaker *resilience.Breaker
}

// NewBreakerStore wraps store with a circuit breaker named after the
// backend.
func NewBreakerStore(store Store, name string) *BreakerStore {
	return &BreakerStore{
		inner: store,
		breaker: resilience.New(resilience.Config{
			Name:     name,
			Trip:     5,
			Cooldown: 15 * time.Second,
			Probes:   2,
		}),
	}
}

var _ Store = (*BreakerStore)(nil)

// do routes a store call through the breaker. Client-caused errors
// (duplicates) are hidden from the failure accounting.
func (s *BreakerStore) do(fn func() error) error {
	var clientErr error
	err := s.breaker.Do(func() error {
		err := fn()
		if errors.Is(err, ErrDuplicate) {
			clientErr = err
			return nil
		}
		return err
	})
	if clientErr != nil {
		return clientErr
	}
	return err
}

func (s *BreakerStore) SaveAttempt(ctx context.Context, rec session.AttemptRecord) error {
	return s.do(func() error { return s.inner.SaveAttempt(ctx, rec) })
}

func (s *BreakerStore) SaveAudio(ctx context.Context, sessionID, filename string, data []byte) (string, error) {
	var path string
	err := s.do(func() error {
		var err error
		path, err = s.inner.SaveAudio(ctx, sessionID, filename, data)
		return err
	})
	return path, err
}

func (s *BreakerStore) SaveSummary(ctx context.Context, sum session.RunSummary) error {
	return s.do(func() error { return s.inner.SaveSummary(ctx, sum) })
}

func (s *BreakerStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.do(func() error {
		var err error
		stats, err = s.inner.Stats(ctx)
		return err
	})
	return stats, err
}

func (s *BreakerStore) Export(ctx context.Context) (Export, error) {
	var exp Export
	err := s.do(func() error {
		var err error
		exp, err = s.inner.Export(ctx)
		return err
	})
	return exp, err
}

// Ping reports the breaker state as well as backend health, so readiness
// probes see an open breaker as not ready.
func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.do(func() error { return s.inner.Ping(ctx) })
}
