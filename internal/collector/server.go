package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carivox/voicerunner/internal/config"
	"github.com/carivox/voicerunner/internal/corpus"
	"github.com/carivox/voicerunner/internal/observe"
	"github.com/carivox/voicerunner/internal/session"
)

// maxAudioBytes caps a single audio upload.
const maxAudioBytes = 5 << 20

// Server is the collector HTTP API. Register its routes on a mux with
// [Server.Register]; wrap the mux with [observe.Middleware] for request
// metrics and tracing.
type Server struct {
	store      Store
	storeName  string
	corpusPath string
	vad        config.VADConfig
	game       config.GameConfig
	metrics    *observe.Metrics
	live       *LiveFeed
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithLiveFeed attaches a websocket stats feed served at /api/live.
func WithLiveFeed(feed *LiveFeed) ServerOption {
	return func(s *Server) { s.live = feed }
}

// WithServerMetrics overrides the metrics instance. The default is
// [observe.DefaultMetrics].
func WithServerMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithTuning sets the VAD and game tuning served at /api/config.
func WithTuning(vad config.VADConfig, game config.GameConfig) ServerOption {
	return func(s *Server) {
		s.vad = vad
		s.game = game
	}
}

// NewServer creates the collector API over the given store. storeName labels
// storage metrics ("local" or "postgres"); corpusPath locates the phrase
// corpus served at /api/phrases.
func NewServer(store Store, storeName, corpusPath string, opts ...ServerOption) *Server {
	s := &Server{
		store:      store,
		storeName:  storeName,
		corpusPath: corpusPath,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register adds the collector routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/upload", s.handleUploadSummary)
	mux.HandleFunc("POST /api/upload/audio", s.handleUploadAudio)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/phrases", s.handlePhrases)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	if s.live != nil {
		mux.HandleFunc("GET /api/live", s.live.Serve)
	}
}

// uploadResponse is the body returned by the upload endpoints.
type uploadResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	AudioPath string `json:"audioPath,omitempty"`
	SizeBytes int    `json:"sizeBytes,omitempty"`
	Message   string `json:"message,omitempty"`
}

// handleUploadSummary receives a completed run summary as JSON.
func (s *Server) handleUploadSummary(w http.ResponseWriter, r *http.Request) {
	var sum session.RunSummary
	if err := json.NewDecoder(r.Body).Decode(&sum); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if sum.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := s.store.SaveSummary(r.Context(), sum); err != nil {
		s.metrics.RecordStoreError(r.Context(), s.storeName, "save_summary")
		observe.Logger(r.Context()).Error("collector: save summary failed", "session_id", sum.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	observe.Logger(r.Context()).Info("collector: run summary stored",
		"session_id", sum.SessionID,
		"score", sum.Score,
	)
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:   true,
		SessionID: sum.SessionID,
		Message:   "session uploaded",
	})
}

// handleUploadAudio receives one attempt recording as a multipart form with
// a "metadata" field (the attempt record JSON) and an "audio" file part.
func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+64<<10)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	var rec session.AttemptRecord
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &rec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid metadata JSON: %v", err))
		return
	}
	if rec.ID == "" || rec.SessionID == "" {
		writeError(w, http.StatusBadRequest, "metadata must carry id and sessionId")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio")
		return
	}
	if len(data) > maxAudioBytes {
		writeError(w, http.StatusBadRequest, "audio file too large (max 5MB)")
		return
	}

	filename := header.Filename
	if filename == "" {
		filename = fmt.Sprintf("%s_%s.webm", rec.PhraseID, time.Now().UTC().Format("20060102_150405"))
	}

	audioPath, err := s.store.SaveAudio(r.Context(), rec.SessionID, filename, data)
	if err != nil {
		s.metrics.RecordStoreError(r.Context(), s.storeName, "save_audio")
		observe.Logger(r.Context()).Error("collector: save audio failed", "session_id", rec.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if err := s.store.SaveAttempt(r.Context(), rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			writeError(w, http.StatusConflict, "recording already exists")
			return
		}
		s.metrics.RecordStoreError(r.Context(), s.storeName, "save_attempt")
		observe.Logger(r.Context()).Error("collector: save attempt failed", "record_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	s.metrics.RecordingsStored.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("store", s.storeName)),
	)
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:   true,
		SessionID: rec.SessionID,
		AudioPath: audioPath,
		SizeBytes: len(data),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.metrics.RecordStoreError(r.Context(), s.storeName, "stats")
		observe.Logger(r.Context()).Error("collector: stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.Export(r.Context())
	if err != nil {
		s.metrics.RecordStoreError(r.Context(), s.storeName, "export")
		observe.Logger(r.Context()).Error("collector: export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	exp.ExportedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, exp)
}

// handlePhrases serves the phrase corpus to game clients. The corpus file is
// re-read per request so corpus edits apply without a restart.
func (s *Server) handlePhrases(w http.ResponseWriter, r *http.Request) {
	if s.corpusPath == "" {
		writeJSON(w, http.StatusOK, map[string]any{"phrases": []corpus.Phrase{}})
		return
	}
	c, err := corpus.Load(s.corpusPath)
	if err != nil {
		observe.Logger(r.Context()).Error("collector: corpus load failed", "path", s.corpusPath, "error", err)
		writeError(w, http.StatusInternalServerError, "corpus unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phrases": c.Phrases()})
}

// handleConfig serves the VAD and game tuning clients apply at session start.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"vad":  s.vad,
		"game": s.game,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("collector: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
