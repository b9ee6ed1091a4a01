package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dishscout/dishscout/engine"
	"github.com/dishscout/dishscout/llm"
	"github.com/dishscout/dishscout/queue"
	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/state"
)

type stubRecommender struct {
	err      error
	lastMode string
	lastReq  recommend.Params
}

func (s *stubRecommender) result() (*recommend.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &recommend.Result{Items: []recommend.Item{{Category: "Sushi", TopicTitle: "Fresh", Reason: "near the sea"}}}, nil
}

func (s *stubRecommender) Recommend(ctx context.Context, p recommend.Params) (*recommend.Result, error) {
	s.lastMode, s.lastReq = recommend.ModeTool, p
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.result()
}

func (s *stubRecommender) RecommendFromText(ctx context.Context, p recommend.Params) (*recommend.Result, error) {
	s.lastMode, s.lastReq = recommend.ModeText, p
	return s.result()
}

func setupTestServer(t *testing.T, rec *stubRecommender) *Server {
	t.Helper()
	store := state.NewInMemoryStore()
	q := queue.NewInMemoryQueue()
	t.Cleanup(func() { q.Close() })

	eng, err := engine.New(engine.Config{StateStore: store, Queue: q})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	server, err := New(Config{
		Engine:      eng,
		Recommender: rec,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "dishscout_up 1\n")
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server
}

func do(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestServer_New(t *testing.T) {
	if _, err := New(Config{Recommender: &stubRecommender{}}); err == nil {
		t.Error("expected error without engine")
	}
}

func TestServer_Recommend(t *testing.T) {
	rec := &stubRecommender{}
	server := setupTestServer(t, rec)

	w := do(t, server, http.MethodPost, "/recommendations", `{"location":"35.68,139.76","languageTag":"ja-JP","restrictions":["vegan"]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	res := decodeBody[recommend.Result](t, w)
	if len(res.Items) != 1 || res.Items[0].Category != "Sushi" {
		t.Errorf("unexpected items: %+v", res.Items)
	}
	if rec.lastMode != recommend.ModeTool || rec.lastReq.Restrictions[0] != "vegan" {
		t.Errorf("unexpected call: mode=%s params=%+v", rec.lastMode, rec.lastReq)
	}

	do(t, server, http.MethodPost, "/recommendations?mode=text", `{"location":"35.68,139.76"}`, nil)
	if rec.lastMode != recommend.ModeText {
		t.Errorf("expected text mode, got %s", rec.lastMode)
	}
}

func TestServer_RecommendErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{name: "method", method: http.MethodGet, path: "/recommendations", want: http.StatusMethodNotAllowed},
		{name: "bad json", method: http.MethodPost, path: "/recommendations", body: `{`, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/recommendations", body: `{"loc":"x"}`, want: http.StatusBadRequest},
		{name: "invalid params", method: http.MethodPost, path: "/recommendations", body: `{"location":"tokyo"}`, want: http.StatusBadRequest},
		{name: "unknown mode", method: http.MethodPost, path: "/recommendations?mode=stream", body: `{"location":"1,2"}`, want: http.StatusBadRequest},
		{name: "upstream", err: &llm.APIError{Provider: "Claude", Status: 529}, method: http.MethodPost, path: "/recommendations", body: `{"location":"1,2"}`, want: http.StatusServiceUnavailable},
		{name: "logical", err: fmt.Errorf("Invalid item count: expected 10, got 3"), method: http.MethodPost, path: "/recommendations", body: `{"location":"1,2"}`, want: http.StatusBadGateway},
		{name: "deadline", err: context.DeadlineExceeded, method: http.MethodPost, path: "/recommendations", body: `{"location":"1,2"}`, want: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("boom"), method: http.MethodPost, path: "/recommendations", body: `{"location":"1,2"}`, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, &stubRecommender{err: tt.err})
			w := do(t, server, tt.method, tt.path, tt.body, nil)
			if w.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if resp := decodeBody[ErrorResponse](t, w); resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestServer_HidesUpstreamErrorDetail(t *testing.T) {
	upstream := &llm.APIError{Provider: "Claude", Status: 500, Body: `{"error":"internal trace abc123"}`}
	server := setupTestServer(t, &stubRecommender{err: upstream})
	w := do(t, server, http.MethodPost, "/recommendations", `{"location":"1,2"}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	resp := decodeBody[ErrorResponse](t, w)
	if strings.Contains(resp.Error, "abc123") || strings.Contains(resp.Error, "Claude") {
		t.Errorf("expected upstream detail to stay out of the response, got %q", resp.Error)
	}
	if resp.Error != "recommendation failed: service unavailable" {
		t.Errorf("unexpected message %q", resp.Error)
	}

	server = setupTestServer(t, &stubRecommender{})
	w = do(t, server, http.MethodGet, "/jobs/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	if resp := decodeBody[ErrorResponse](t, w); !strings.Contains(resp.Error, "not found") {
		t.Errorf("expected client errors to keep their detail, got %q", resp.Error)
	}
}

func TestServer_SubmitAndGetJob(t *testing.T) {
	server := setupTestServer(t, &stubRecommender{})

	body, _ := json.Marshal(SubmitJobRequest{Mode: recommend.ModeText, Params: recommend.Params{Location: "35.68,139.76"}})
	w := do(t, server, http.MethodPost, "/jobs", string(body), nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	submitted := decodeBody[JobResponse](t, w)
	if submitted.Job == nil || submitted.ID == "" || submitted.Status != state.StatusPending {
		t.Fatalf("unexpected job: %+v", submitted.Job)
	}
	if loc := w.Header().Get("Location"); loc != "/jobs/"+submitted.ID {
		t.Errorf("unexpected Location %q", loc)
	}

	w = do(t, server, http.MethodGet, "/jobs/"+submitted.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	got := decodeBody[JobResponse](t, w)
	if got.ID != submitted.ID || got.Mode != recommend.ModeText {
		t.Errorf("unexpected job: %+v", got.Job)
	}

	w = do(t, server, http.MethodGet, "/jobs", "", nil)
	list := decodeBody[ListJobsResponse](t, w)
	if len(list.Jobs) != 1 || list.QueueDepth != 1 {
		t.Errorf("expected one queued job, got %d jobs depth %d", len(list.Jobs), list.QueueDepth)
	}
}

func TestServer_SubmitJobIdempotent(t *testing.T) {
	server := setupTestServer(t, &stubRecommender{})
	body := `{"params":{"location":"35.68,139.76"}}`
	header := map[string]string{"Idempotency-Key": "abc"}

	first := do(t, server, http.MethodPost, "/jobs", body, header)
	second := do(t, server, http.MethodPost, "/jobs", body, header)
	if first.Code != http.StatusAccepted || second.Code != http.StatusOK {
		t.Fatalf("expected 202 then 200, got %d then %d", first.Code, second.Code)
	}
	a := decodeBody[JobResponse](t, first)
	b := decodeBody[JobResponse](t, second)
	if a.ID != b.ID {
		t.Errorf("expected same job id, got %s and %s", a.ID, b.ID)
	}
}

func TestServer_JobErrors(t *testing.T) {
	server := setupTestServer(t, &stubRecommender{})

	if w := do(t, server, http.MethodGet, "/jobs/missing", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", w.Code)
	}
	if w := do(t, server, http.MethodDelete, "/jobs", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
	if w := do(t, server, http.MethodPost, "/jobs", `{"mode":"stream","params":{"location":"1,2"}}`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", w.Code)
	}
	if w := do(t, server, http.MethodGet, "/jobs/a/b", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for nested path, got %d", w.Code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	server := setupTestServer(t, &stubRecommender{})

	w := do(t, server, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if resp := decodeBody[map[string]string](t, w); resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}

	w = do(t, server, http.MethodGet, "/metrics", "", nil)
	if !bytes.Contains(w.Body.Bytes(), []byte("dishscout_up")) {
		t.Errorf("expected metrics body, got %q", w.Body.String())
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	server := setupTestServer(t, &stubRecommender{})
	h := server.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
