package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/factorybrain/api/internal/domain"
	"github.com/factorybrain/api/internal/service/prediction"
	"github.com/factorybrain/api/internal/service/stats"
	"github.com/factorybrain/api/internal/ws"
)

// streamRecorder is a ResponseWriter safe for concurrent reads while the
// stream handler writes.
type streamRecorder struct {
	mu      sync.Mutex
	header  http.Header
	buf     strings.Builder
	status  int
	flushes int
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (sr *streamRecorder) Header() http.Header {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.header
}

func (sr *streamRecorder) Write(b []byte) (int, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.buf.Write(b)
}

func (sr *streamRecorder) WriteHeader(code int) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.status = code
}

func (sr *streamRecorder) Flush() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.flushes++
}

func (sr *streamRecorder) body() string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.buf.String()
}

func (sr *streamRecorder) flushCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.flushes
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPredictionStreamEmitsHeartbeatAndEvents(t *testing.T) {
	repo := &stubRepository{}
	classifier := &stubClassifier{classification: domain.Classification{
		Status: domain.StatusFailure,
		Modes:  domain.ModeFlags{PWF: true},
	}}
	log := testLogger()
	feed := ws.NewHub()
	predictionSvc := prediction.New(repo, classifier, feed, log, time.Second)
	statsSvc := stats.New(repo, log)
	router := NewRouter(log, predictionSvc, statsSvc, feed, NewMemoryRateLimiter(), nil, nil)
	defer router.Close()
	router.sseHeartbeat = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events/predictions", nil).WithContext(ctx)

	recorder := newStreamRecorder()
	done := make(chan struct{})
	go func() {
		router.handlePredictionsSSE(recorder, req)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(recorder.body(), ": ping")
	})

	// The subscriber is registered once the heartbeat is flowing; a
	// recorded prediction must now reach the stream.
	result, err := predictionSvc.Ingest(context.Background(), predictInput())
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return strings.Contains(recorder.body(), "data: ")
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not exit after context cancel")
	}

	if ct := recorder.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if recorder.Header().Get("Cache-Control") != "no-cache" {
		t.Fatal("expected no-cache header")
	}
	if recorder.flushCount() == 0 {
		t.Fatal("expected flusher to be invoked")
	}

	event := extractStreamEvent(t, recorder.body())
	if event["id"] != result.Record.ID {
		t.Fatalf("event id = %v, want %v", event["id"], result.Record.ID)
	}
}

func predictInput() prediction.IngestInput {
	machineType := "L"
	airTemp := 298.1
	processTemp := 308.6
	speed := 1551
	torque := 42.8
	toolWear := 0
	return prediction.IngestInput{
		Type:               &machineType,
		AirTemperature:     &airTemp,
		ProcessTemperature: &processTemp,
		RotationalSpeed:    &speed,
		Torque:             &torque,
		ToolWear:           &toolWear,
	}
}

func extractStreamEvent(t *testing.T, body string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode stream event: %v", err)
		}
		return event
	}
	t.Fatal("no data frame in stream body")
	return nil
}
