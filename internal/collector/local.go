package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carivox/voicerunner/internal/session"
)

// LocalStore is a [Store] backed by a directory tree on the local filesystem:
//
//	<root>/sessions/<sessionID>.json
//	<root>/metadata/<sessionID>/<recordID>.json
//	<root>/audio/<sessionID>/<filename>
//
// The layout keeps each session's recordings together so partial uploads can
// be inspected and cleaned up by hand.
type LocalStore struct {
	root string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the directory tree under root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	for _, sub := range []string{"sessions", "metadata", "audio"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("collector: create %s dir: %w", sub, err)
		}
	}
	return &LocalStore{root: root}, nil
}

// SaveAttempt writes the record as pretty-printed JSON under metadata/.
func (s *LocalStore) SaveAttempt(_ context.Context, rec session.AttemptRecord) error {
	if rec.ID == "" || rec.SessionID == "" {
		return fmt.Errorf("collector: attempt record missing id or session id")
	}
	dir := filepath.Join(s.root, "metadata", sanitize(rec.SessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("collector: create session metadata dir: %w", err)
	}

	path := filepath.Join(dir, sanitize(rec.ID)+".json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("collector: attempt record %q %w", rec.ID, ErrDuplicate)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("collector: marshal attempt record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("collector: write attempt record: %w", err)
	}
	return nil
}

// SaveAudio writes the blob under audio/<sessionID>/ and returns its path.
func (s *LocalStore) SaveAudio(_ context.Context, sessionID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.root, "audio", sanitize(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("collector: create session audio dir: %w", err)
	}
	path := filepath.Join(dir, sanitize(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("collector: write audio: %w", err)
	}
	return path, nil
}

// SaveSummary writes (or overwrites) the summary under sessions/.
func (s *LocalStore) SaveSummary(_ context.Context, sum session.RunSummary) error {
	if sum.SessionID == "" {
		return fmt.Errorf("collector: run summary missing session id")
	}
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("collector: marshal run summary: %w", err)
	}
	path := filepath.Join(s.root, "sessions", sanitize(sum.SessionID)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("collector: write run summary: %w", err)
	}
	return nil
}

// Stats walks the directory tree and aggregates counts.
func (s *LocalStore) Stats(ctx context.Context) (Stats, error) {
	stats := newStats()

	sessions, err := filepath.Glob(filepath.Join(s.root, "sessions", "*.json"))
	if err != nil {
		return Stats{}, fmt.Errorf("collector: list sessions: %w", err)
	}
	stats.TotalSessions = len(sessions)

	err = s.eachRecord(ctx, func(rec session.AttemptRecord) {
		stats.TotalRecordings++
		stats.PhraseBreakdown[string(rec.PhraseCategory)]++
		stats.RegisterBreakdown[string(rec.PhraseRegister)]++
		stats.OutcomeBreakdown[string(rec.Outcome)]++
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Export reads every stored session and recording back into memory.
func (s *LocalStore) Export(ctx context.Context) (Export, error) {
	exp := Export{
		Sessions:   []session.RunSummary{},
		Recordings: []session.AttemptRecord{},
	}

	sessionFiles, err := filepath.Glob(filepath.Join(s.root, "sessions", "*.json"))
	if err != nil {
		return Export{}, fmt.Errorf("collector: list sessions: %w", err)
	}
	for _, path := range sessionFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return Export{}, fmt.Errorf("collector: read %q: %w", path, err)
		}
		var sum session.RunSummary
		if err := json.Unmarshal(data, &sum); err != nil {
			return Export{}, fmt.Errorf("collector: decode %q: %w", path, err)
		}
		exp.Sessions = append(exp.Sessions, sum)
	}

	err = s.eachRecord(ctx, func(rec session.AttemptRecord) {
		exp.Recordings = append(exp.Recordings, rec)
	})
	if err != nil {
		return Export{}, err
	}
	return exp, nil
}

// Ping verifies the root directory is still accessible.
func (s *LocalStore) Ping(_ context.Context) error {
	_, err := os.Stat(s.root)
	return err
}

// eachRecord decodes every metadata file and passes it to fn.
func (s *LocalStore) eachRecord(ctx context.Context, fn func(session.AttemptRecord)) error {
	metaFiles, err := filepath.Glob(filepath.Join(s.root, "metadata", "*", "*.json"))
	if err != nil {
		return fmt.Errorf("collector: list recordings: %w", err)
	}
	for _, path := range metaFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("collector: read %q: %w", path, err)
		}
		var rec session.AttemptRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("collector: decode %q: %w", path, err)
		}
		fn(rec)
	}
	return nil
}

// sanitize strips path separators and parent references from client-supplied
// identifiers before they are used as file names.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.ReplaceAll(name, ":", "-")
	return name
}
