// Package collector implements the server side of Voice Runner data
// collection: an HTTP API that receives attempt recordings and run summaries
// from game clients, pluggable storage backends for persisting them, and a
// websocket feed broadcasting aggregate statistics.
package collector

import (
	"context"
	"errors"
	"time"

	"github.com/carivox/voicerunner/internal/session"
)

// ErrDuplicate is returned by [Store.SaveAttempt] when a record with the
// same ID was already persisted. Duplicates come from client retries, not
// backend faults, so callers should not treat them as storage outages.
var ErrDuplicate = errors.New("already exists")

// Stats is the aggregate view of everything collected so far.
type Stats struct {
	TotalSessions   int `json:"totalSessions"`
	TotalRecordings int `json:"totalRecordings"`

	// PhraseBreakdown counts recordings per phrase category.
	PhraseBreakdown map[string]int `json:"phraseBreakdown"`

	// RegisterBreakdown counts recordings per linguistic register.
	RegisterBreakdown map[string]int `json:"registerBreakdown"`

	// OutcomeBreakdown counts recordings per evaluation outcome.
	OutcomeBreakdown map[string]int `json:"outcomeBreakdown"`
}

// Export is the full data dump served to analysis tooling.
type Export struct {
	ExportedAt time.Time               `json:"exportedAt"`
	Sessions   []session.RunSummary    `json:"sessions"`
	Recordings []session.AttemptRecord `json:"recordings"`
}

// Store persists collected data. Implementations must be safe for concurrent
// use; the HTTP server calls them from multiple request goroutines.
type Store interface {
	// SaveAttempt persists one attempt record. Records are append-only;
	// saving a record with a duplicate ID is an error.
	SaveAttempt(ctx context.Context, rec session.AttemptRecord) error

	// SaveAudio persists an audio blob for the given session and returns an
	// opaque storage path recorded alongside the metadata.
	SaveAudio(ctx context.Context, sessionID, filename string, data []byte) (string, error)

	// SaveSummary persists a run summary. Saving the same session twice
	// overwrites the previous summary.
	SaveSummary(ctx context.Context, sum session.RunSummary) error

	// Stats computes the aggregate statistics over everything stored.
	Stats(ctx context.Context) (Stats, error)

	// Export returns all stored sessions and recordings.
	Export(ctx context.Context) (Export, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

func newStats() Stats {
	return Stats{
		PhraseBreakdown:   make(map[string]int),
		RegisterBreakdown: make(map[string]int),
		OutcomeBreakdown:  make(map[string]int),
	}
}
