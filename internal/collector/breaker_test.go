package collector_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/carivox/voicerunner/internal/collector"
	"github.com/carivox/voicerunner/internal/resilience"
	"github.com/carivox/voicerunner/internal/session"
)

// flakyStore fails every call until healed.
type flakyStore struct {
	healthy bool
	calls   int
}

func (s *flakyStore) err() error {
	s.calls++
	if s.healthy {
		return nil
	}
	return errors.New("backend down")
}

func (s *flakyStore) SaveAttempt(context.Context, session.AttemptRecord) error { return s.err() }
func (s *flakyStore) SaveSummary(context.Context, session.RunSummary) error    { return s.err() }
func (s *flakyStore) Ping(context.Context) error                               { return s.err() }

func (s *flakyStore) SaveAudio(context.Context, string, string, []byte) (string, error) {
	return "", s.err()
}

func (s *flakyStore) Stats(context.Context) (collector.Stats, error) {
	return collector.Stats{TotalRecordings: 7}, s.err()
}

func (s *flakyStore) Export(context.Context) (collector.Export, error) {
	return collector.Export{}, s.err()
}

// dupStore always reports the record as a duplicate.
type dupStore struct {
	flakyStore
}

func (s *dupStore) SaveAttempt(context.Context, session.AttemptRecord) error {
	s.calls++
	return fmt.Errorf("record %w", collector.ErrDuplicate)
}

func TestBreakerStore_TripsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	inner := &flakyStore{}
	store := collector.NewBreakerStore(inner, "postgres")
	ctx := context.Background()

	for range 5 {
		if err := store.Ping(ctx); err == nil {
			t.Fatal("expected ping failure")
		}
	}

	// The breaker is now open; calls fail fast without reaching the backend.
	before := inner.calls
	err := store.SaveSummary(ctx, session.RunSummary{SessionID: "s1"})
	if !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("error = %v, want resilience.ErrOpen", err)
	}
	if inner.calls != before {
		t.Fatal("backend was called while the breaker was open")
	}
}

func TestBreakerStore_ForwardsWhileHealthy(t *testing.T) {
	t.Parallel()

	inner := &flakyStore{healthy: true}
	store := collector.NewBreakerStore(inner, "local")
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalRecordings != 7 {
		t.Fatalf("TotalRecordings = %d, want 7", stats.TotalRecordings)
	}
}

func TestBreakerStore_DuplicatesDoNotTrip(t *testing.T) {
	t.Parallel()

	inner := &dupStore{}
	store := collector.NewBreakerStore(inner, "local")
	ctx := context.Background()

	rec := session.AttemptRecord{ID: "a1", SessionID: "s1"}
	for range 10 {
		err := store.SaveAttempt(ctx, rec)
		if !errors.Is(err, collector.ErrDuplicate) {
			t.Fatalf("error = %v, want ErrDuplicate", err)
		}
	}
	if inner.calls != 10 {
		t.Fatalf("calls = %d, want 10 (breaker must stay closed)", inner.calls)
	}
}
