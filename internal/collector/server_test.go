package collector_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/carivox/voicerunner/internal/collector"
	"github.com/carivox/voicerunner/internal/config"
	"github.com/carivox/voicerunner/internal/observe"
)

const testCorpusYAML = `
phrases:
  - id: p1
    text: "mi deh yah"
    tier: 1
    category: NEUTRAL
    register: MESOLECT
    syllables: 4
  - id: p2
    text: "send help now"
    tier: 2
    category: EMERGENCY
    register: ACROLECT
    syllables: 3
`

// newTestServer wires a collector API over a fresh local store and returns
// the mux ready for httptest requests.
func newTestServer(t *testing.T) (*http.ServeMux, *collector.LocalStore) {
	t.Helper()

	store, err := collector.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	corpusPath := filepath.Join(t.TempDir(), "corpus.yaml")
	if err := os.WriteFile(corpusPath, []byte(testCorpusYAML), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	srv := collector.NewServer(store, "local", corpusPath,
		collector.WithServerMetrics(metrics),
		collector.WithTuning(
			config.VADConfig{SpeechThreshold: 0.08, SilenceThreshold: 0.03},
			config.GameConfig{BaseSpeed: 150, Lives: 3},
		),
	)
	mux := http.NewServeMux()
	srv.Register(mux)
	return mux, store
}

// multipartAudio builds a multipart body with metadata and an audio part.
func multipartAudio(t *testing.T, metadata string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("metadata", metadata); err != nil {
		t.Fatalf("write metadata field: %v", err)
	}
	part, err := w.CreateFormFile("audio", "p1_001.webm")
	if err != nil {
		t.Fatalf("create audio part: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		t.Fatalf("write audio part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestServer_UploadSummary(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)

	body, err := json.Marshal(testSummary("s1"))
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/upload", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Success   bool   `json:"success"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.SessionID != "s1" {
		t.Errorf("response = %+v, want success for s1", resp)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSessions != 1 {
		t.Errorf("stored sessions = %d, want 1", stats.TotalSessions)
	}
}

func TestServer_UploadSummaryRejectsBadJSON(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/upload", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_UploadSummaryRequiresSessionID(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/upload", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_UploadAudio(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)

	metadata, err := json.Marshal(testAttempt("a1", "s1"))
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	body, contentType := multipartAudio(t, string(metadata), []byte("opus-bytes"))

	req := httptest.NewRequest("POST", "/api/upload/audio", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Success   bool   `json:"success"`
		AudioPath string `json:"audioPath"`
		SizeBytes int    `json:"sizeBytes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.SizeBytes != len("opus-bytes") {
		t.Errorf("response = %+v", resp)
	}
	if _, err := os.Stat(resp.AudioPath); err != nil {
		t.Errorf("audio file not stored: %v", err)
	}

	exp, err := store.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(exp.Recordings) != 1 {
		t.Errorf("stored recordings = %d, want 1", len(exp.Recordings))
	}
}

func TestServer_UploadAudioDuplicateConflicts(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	metadata, err := json.Marshal(testAttempt("a1", "s1"))
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	for i, want := range []int{http.StatusOK, http.StatusConflict} {
		body, contentType := multipartAudio(t, string(metadata), []byte("opus-bytes"))
		req := httptest.NewRequest("POST", "/api/upload/audio", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("upload %d: status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestServer_UploadAudioRejectsMissingMetadata(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	body, contentType := multipartAudio(t, "{}", []byte("x"))
	req := httptest.NewRequest("POST", "/api/upload/audio", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)
	if err := store.SaveAttempt(context.Background(), testAttempt("a1", "s1")); err != nil {
		t.Fatalf("SaveAttempt: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats collector.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalRecordings != 1 {
		t.Errorf("total recordings = %d, want 1", stats.TotalRecordings)
	}
}

func TestServer_Export(t *testing.T) {
	t.Parallel()

	mux, store := newTestServer(t)
	ctx := context.Background()
	if err := store.SaveAttempt(ctx, testAttempt("a1", "s1")); err != nil {
		t.Fatalf("SaveAttempt: %v", err)
	}
	if err := store.SaveSummary(ctx, testSummary("s1")); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/export", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var exp collector.Export
	if err := json.NewDecoder(rec.Body).Decode(&exp); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(exp.Sessions) != 1 || len(exp.Recordings) != 1 {
		t.Errorf("export = %d sessions / %d recordings, want 1/1", len(exp.Sessions), len(exp.Recordings))
	}
	if exp.ExportedAt.IsZero() {
		t.Error("exportedAt is zero")
	}
}

func TestServer_Phrases(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/phrases", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Phrases []struct {
			ID       string `json:"id"`
			Category string `json:"category"`
		} `json:"phrases"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode phrases: %v", err)
	}
	if len(resp.Phrases) != 2 {
		t.Fatalf("got %d phrases, want 2", len(resp.Phrases))
	}
	if resp.Phrases[0].ID != "p1" || resp.Phrases[1].Category != "EMERGENCY" {
		t.Errorf("phrases = %+v", resp.Phrases)
	}
}

func TestServer_Config(t *testing.T) {
	t.Parallel()

	mux, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/config", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		VAD struct {
			SpeechThreshold float64 `json:"speechThreshold"`
		} `json:"vad"`
		Game struct {
			BaseSpeed float64 `json:"baseSpeed"`
			Lives     int     `json:"lives"`
		} `json:"game"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if resp.VAD.SpeechThreshold != 0.08 {
		t.Errorf("speech threshold = %v, want 0.08", resp.VAD.SpeechThreshold)
	}
	if resp.Game.BaseSpeed != 150 || resp.Game.Lives != 3 {
		t.Errorf("game tuning = %+v", resp.Game)
	}
}
