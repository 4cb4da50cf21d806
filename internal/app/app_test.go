package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/calebmoss/berea/internal/app"
	"github.com/calebmoss/berea/internal/config"
	"github.com/calebmoss/berea/internal/observe"
	"github.com/calebmoss/berea/internal/transcript"
	"github.com/calebmoss/berea/pkg/bibledb"
	"github.com/calebmoss/berea/pkg/store"
	"github.com/calebmoss/berea/pkg/studyguide"
)

// fakeTranscriber emits a fixed word stream per chunk, optionally failing
// the first N calls.
type fakeTranscriber struct {
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (*transcript.Fragment, error) {
	f.calls.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return nil, errors.New("whisper exploded")
	}
	words := strings.Fields("for God so loved the world John 3:16 says it all")
	frag := &transcript.Fragment{Text: strings.Join(words, " ")}
	for i, w := range words {
		frag.Words = append(frag.Words, transcript.Word{
			Text:  w,
			Start: time.Duration(i) * 500 * time.Millisecond,
			End:   time.Duration(i+1) * 500 * time.Millisecond,
		})
	}
	return frag, nil
}

// fakeGenerator returns a deterministic guide draft referencing the
// transcript.
type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, sermonID, _ string) (*studyguide.StudyGuide, error) {
	return &studyguide.StudyGuide{
		SermonID:      sermonID,
		SchemaVersion: studyguide.CurrentSchemaVersion,
		Summary:       "God's love for the world.",
		Quotes: []studyguide.Quote{
			{ID: "q1", Text: "for God so loved the world"},
		},
		MentionedReferences: []studyguide.VerseReference{
			{Raw: "John 3:16"},
		},
		SuggestedReferences: []studyguide.VerseReference{
			{Raw: "Romans 5:8"},
		},
	}, nil
}

type fixture struct {
	srv         *httptest.Server
	transcriber *fakeTranscriber
	audioDir    string
	reader      *sdkmetric.ManualReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	lookup := bibledb.NewMemoryLookup()
	lookup.AddCrossReference("43.3.16", "45.5.8")

	cfg := &config.Config{}
	cfg.Storage.AudioDir = t.TempDir()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ft := &fakeTranscriber{}
	a, err := app.New(context.Background(), cfg,
		app.WithStore(store.NewMemoryStore()),
		app.WithLookup(lookup),
		app.WithTranscriber(ft),
		app.WithGenerator(fakeGenerator{}),
		app.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, transcriber: ft, audioDir: cfg.Storage.AudioDir, reader: reader}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func (f *fixture) uploadChunk(t *testing.T, sermonID string, index int, offsetMS int64) {
	t.Helper()
	f.uploadChunkBody(t, sermonID, index, offsetMS, "RIFFfakewav")
}

func (f *fixture) uploadChunkBody(t *testing.T, sermonID string, index int, offsetMS int64, body string) {
	t.Helper()
	url := fmt.Sprintf("%s/api/sermons/%s/chunks/%d?offset_ms=%d&duration_ms=6000",
		f.srv.URL, sermonID, index, offsetMS)
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload chunk %d: %v", index, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload chunk %d: status %d", index, resp.StatusCode)
	}
}

// verificationCount sums the verification counter's datapoints for one status.
func (f *fixture) verificationCount(t *testing.T, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "berea.verify.lookups" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("status")); ok && v.AsString() == status {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// waitForTracks polls the sermon until both tracks reach the wanted states.
func (f *fixture) waitForTracks(t *testing.T, sermonID, transcription, guide string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var last []byte
	for time.Now().Before(deadline) {
		resp, body := f.do(t, http.MethodGet, "/api/sermons/"+sermonID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get sermon: status %d", resp.StatusCode)
		}
		last = body
		var got struct {
			TranscriptionStatus string `json:"transcription_status"`
			StudyGuideStatus    string `json:"study_guide_status"`
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.TranscriptionStatus == transcription && got.StudyGuideStatus == guide {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for tracks %s/%s; last state: %s", transcription, guide, last)
}

func (f *fixture) createSermon(t *testing.T, title string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/sermons", map[string]any{"title": title})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create sermon: status %d, body %s", resp.StatusCode, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return created.ID
}

func TestEndToEnd_CaptureToStudyGuide(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.createSermon(t, "The Love of God")
	f.uploadChunk(t, id, 0, 0)
	f.uploadChunk(t, id, 1, 6000)

	resp, body := f.do(t, http.MethodPost, "/api/sermons/"+id+"/process", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("process: status %d, body %s", resp.StatusCode, body)
	}

	f.waitForTracks(t, id, "succeeded", "succeeded")

	// Chunk audio was archived to disk.
	if _, err := os.Stat(filepath.Join(f.audioDir, id, "chunk-00000.wav")); err != nil {
		t.Errorf("archived chunk audio missing: %v", err)
	}

	// Transcript assembled from both chunks in order.
	resp, body = f.do(t, http.MethodGet, "/api/sermons/"+id+"/transcript", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transcript: status %d", resp.StatusCode)
	}
	var tr transcript.Transcript
	if err := json.Unmarshal(body, &tr); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(tr.Words) != 22 {
		t.Errorf("transcript has %d words, want 22 (11 per chunk)", len(tr.Words))
	}
	if tr.Words[11].Start != 6*time.Second {
		t.Errorf("second chunk start = %v, want 6s offset applied", tr.Words[11].Start)
	}

	// Display segments come straight from the stored transcript.
	resp, body = f.do(t, http.MethodGet, "/api/sermons/"+id+"/segments", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("segments: status %d", resp.StatusCode)
	}
	var segments []transcript.DisplaySegment
	if err := json.Unmarshal(body, &segments); err != nil {
		t.Fatalf("decode segments: %v", err)
	}
	if len(segments) == 0 {
		t.Fatal("no display segments")
	}

	// Study guide: verified suggestion, mentioned flag, anchored quote.
	resp, body = f.do(t, http.MethodGet, "/api/sermons/"+id+"/guide", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("guide: status %d", resp.StatusCode)
	}
	var guide studyguide.StudyGuide
	if err := json.Unmarshal(body, &guide); err != nil {
		t.Fatalf("decode guide: %v", err)
	}
	if len(guide.SuggestedReferences) != 1 {
		t.Fatalf("got %d suggested references, want 1", len(guide.SuggestedReferences))
	}
	if got := guide.SuggestedReferences[0].Status; got != studyguide.StatusVerified {
		t.Errorf("suggested reference status = %q, want verified (cross-reference of John 3:16)", got)
	}
	if len(guide.MentionedReferences) != 1 || !guide.MentionedReferences[0].IsMentioned {
		t.Errorf("mentioned reference not flagged: %+v", guide.MentionedReferences)
	}
	if len(guide.Quotes) != 1 || !guide.Quotes[0].Anchored {
		t.Fatalf("quote not anchored: %+v", guide.Quotes)
	}
	if guide.Quotes[0].Confidence < 0.99 {
		t.Errorf("exact quote confidence = %v, want ~1.0", guide.Quotes[0].Confidence)
	}

	// The one suggested reference was classified and counted.
	if got := f.verificationCount(t, "verified"); got != 1 {
		t.Errorf("verified classifications recorded = %d, want 1", got)
	}
}

func TestIngest_ReplacedChunkPayloadRearchives(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.createSermon(t, "Second Take")
	f.uploadChunkBody(t, id, 0, 0, "RIFFtakeone")

	var list struct {
		Chunks []struct {
			ContentHash  string `json:"content_hash"`
			UploadStatus string `json:"upload_status"`
		} `json:"chunks"`
	}
	resp, body := f.do(t, http.MethodGet, "/api/sermons/"+id+"/chunks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list chunks: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	firstHash := list.Chunks[0].ContentHash

	// Re-send the same index with different bytes.
	f.uploadChunkBody(t, id, 0, 0, "RIFFtaketwo")

	resp, body = f.do(t, http.MethodGet, "/api/sermons/"+id+"/chunks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list chunks: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Chunks[0].UploadStatus != "succeeded" {
		t.Errorf("upload status = %q, want succeeded", list.Chunks[0].UploadStatus)
	}
	if list.Chunks[0].ContentHash == firstHash {
		t.Error("content hash not refreshed for the replaced payload")
	}

	// The archive holds the new bytes, not the first delivery's.
	archived, err := os.ReadFile(filepath.Join(f.audioDir, id, "chunk-00000.wav"))
	if err != nil {
		t.Fatalf("read archived chunk: %v", err)
	}
	if string(archived) != "RIFFtaketwo" {
		t.Errorf("archived bytes = %q, want the replacement payload", archived)
	}
}

func TestChunkDurations_CoverSermonDuration(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/sermons", map[string]any{
		"title":       "Counted Minutes",
		"duration_ms": 12000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create sermon: status %d, body %s", resp.StatusCode, body)
	}
	var created struct {
		ID       string        `json:"id"`
		Duration time.Duration `json:"duration"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	f.uploadChunk(t, created.ID, 0, 0)
	f.uploadChunk(t, created.ID, 1, 6000)

	resp, body = f.do(t, http.MethodGet, "/api/sermons/"+created.ID+"/chunks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list chunks: status %d", resp.StatusCode)
	}
	var list struct {
		Chunks []struct {
			Duration time.Duration `json:"duration"`
		} `json:"chunks"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var sum time.Duration
	for _, c := range list.Chunks {
		sum += c.Duration
	}
	if diff := sum - created.Duration; diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Errorf("chunk durations sum to %v, sermon duration %v (diff %v beyond tolerance)",
			sum, created.Duration, diff)
	}
}

func TestEndToEnd_TranscriptionFailureAndRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	// Fail more times than the per-chunk retry budget allows.
	f.transcriber.failures.Store(10)

	id := f.createSermon(t, "Flaky Morning")
	f.uploadChunk(t, id, 0, 0)

	if resp, _ := f.do(t, http.MethodPost, "/api/sermons/"+id+"/process", nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("process: status %d", resp.StatusCode)
	}
	f.waitForTracks(t, id, "failed", "pending")

	// Failed sermons still surface for degraded viewing decisions and sync.
	resp, body := f.do(t, http.MethodGet, "/api/sermons/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get failed sermon: status %d", resp.StatusCode)
	}
	var got struct {
		TranscriptionError string `json:"transcription_error"`
		NeedsSync          bool   `json:"needs_sync"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TranscriptionError == "" {
		t.Error("transcription error not recorded")
	}
	if !got.NeedsSync {
		t.Error("failed sermon not marked dirty")
	}

	// Let the backend recover, then retry just the failed track.
	f.transcriber.failures.Store(0)
	resp, body = f.do(t, http.MethodPost, "/api/sermons/"+id+"/retry",
		map[string]string{"track": "transcription"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("retry: status %d, body %s", resp.StatusCode, body)
	}
	f.waitForTracks(t, id, "succeeded", "succeeded")
}
