package monitor

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"livewatch/internal/capture"
)

func newTestHandler(t *testing.T, pages *fakePages) *Handler {
	t.Helper()
	svc := newTestService(t, pages, nil)
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(svc, log)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestHandler_GetStatus(t *testing.T) {
	h := newTestHandler(t, &fakePages{live: livePageFor(t, 2, "7301", "")})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/status/alice", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["username"] != "alice" || body["live"] != true || body["roomId"] != "7301" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if body["status"] != float64(2) {
		t.Errorf("expected status 2, got %v", body["status"])
	}
}

func TestHandler_GetStatus_absent_fields_are_null(t *testing.T) {
	h := newTestHandler(t, &fakePages{live: "<html></html>"})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/status/bob", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"status", "roomId"} {
		v, ok := body[k]
		if !ok || v != nil {
			t.Errorf("expected %s to be null, got %v (present=%v)", k, v, ok)
		}
	}
	if body["live"] != false {
		t.Errorf("expected live=false")
	}
}

func TestHandler_GetStatus_invalid_account(t *testing.T) {
	h := newTestHandler(t, &fakePages{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/status/@", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "invalid_input" {
		t.Errorf("expected invalid_input, got %q", body.Error)
	}
}

func TestHandler_Capture_sync_failure_status(t *testing.T) {
	h := newTestHandler(t, &fakePages{live: livePageFor(t, 4, "1", "")})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/capture/alice", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for offline account, got %d", rec.Code)
	}
	var job capture.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Stage != capture.StageFailed || job.FailedStage != capture.StageResolving {
		t.Errorf("unexpected job: %+v", job)
	}

	reqGet := httptest.NewRequest(http.MethodGet, "/captures/"+job.ID, nil)
	recGet := httptest.NewRecorder()
	r.ServeHTTP(recGet, reqGet)
	if recGet.Code != http.StatusOK {
		t.Errorf("expected recorded job, got %d", recGet.Code)
	}
}

func TestHandler_Capture_async(t *testing.T) {
	manifest := `{"data":{"ld":{"main":{"hls":"https://cdn.test/ld.m3u8"}}}}`
	h := newTestHandler(t, &fakePages{live: livePageFor(t, 2, "1", manifest)})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/capture/alice?async=true", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var job capture.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a job id")
	}

	reqList := httptest.NewRequest(http.MethodGet, "/captures", nil)
	recList := httptest.NewRecorder()
	r.ServeHTTP(recList, reqList)
	var jobs []capture.Job
	if err := json.Unmarshal(recList.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("expected the queued job in the list, got %+v", jobs)
	}
}

func TestHandler_GetCapture_not_found(t *testing.T) {
	h := newTestHandler(t, &fakePages{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/captures/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body, got %q: %v", rec.Body.String(), err)
	}
	if body.Error != "not_found" || body.Message == "" {
		t.Errorf("unexpected error body: %+v", body)
	}
}

func TestHandler_Capture_async_invalid_account(t *testing.T) {
	pages := &fakePages{}
	h := newTestHandler(t, pages)
	r := newTestRouter(h)

	for _, path := range []string{"/capture/@?async=true", "/capture/..?async=true"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
			continue
		}
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error != "invalid_input" {
			t.Errorf("%s: expected invalid_input, got %q", path, body.Error)
		}
	}
	if len(h.svc.Jobs()) != 0 {
		t.Errorf("no job may be queued for an invalid account")
	}
}

func TestHandler_Logs_account_is_normalized(t *testing.T) {
	h := newTestHandler(t, &fakePages{})
	r := newTestRouter(h)

	b, _ := json.Marshal(map[string]interface{}{"user": "v", "comment": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/logs/alice", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append: expected 201, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/logs/@ALICE", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body logsBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Account != "alice" || body.Total != 1 {
		t.Errorf("expected normalized account with 1 entry, got %+v", body)
	}
}

func TestHandler_Logs(t *testing.T) {
	h := newTestHandler(t, &fakePages{})
	r := newTestRouter(h)

	for i := 0; i < 60; i++ {
		b, _ := json.Marshal(map[string]interface{}{"user": "v", "comment": "c" + strconv.Itoa(i)})
		req := httptest.NewRequest(http.MethodPost, "/logs/alice", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("append %d: expected 201, got %d", i, rec.Code)
		}
	}

	cases := []struct {
		query     string
		wantLen   int
		wantFirst string
	}{
		{"", DefaultLogLimit, "c10"},
		{"?limit=5", 5, "c55"},
		{"?limit=0", 60, "c0"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/logs/alice"+tc.query, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tc.query, rec.Code)
		}
		var body logsBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Total != 60 || len(body.Entries) != tc.wantLen {
			t.Errorf("%q: total=%d len=%d", tc.query, body.Total, len(body.Entries))
			continue
		}
		if body.Entries[0].Comment != tc.wantFirst || body.Entries[len(body.Entries)-1].Comment != "c59" {
			t.Errorf("%q: unexpected window %s..%s", tc.query, body.Entries[0].Comment, body.Entries[len(body.Entries)-1].Comment)
		}
		if body.Entries[0].Timestamp.IsZero() {
			t.Errorf("%q: expected server-stamped timestamp", tc.query)
		}
	}
}

func TestHandler_Logs_bad_requests(t *testing.T) {
	h := newTestHandler(t, &fakePages{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/logs/alice", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad body, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/logs/alice?limit=-1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestHandler_Logs_empty(t *testing.T) {
	h := newTestHandler(t, &fakePages{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/logs/nobody", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"entries":[]`)) {
		t.Errorf("expected empty entries array, got %s", rec.Body.String())
	}
}

func TestHandler_Health(t *testing.T) {
	h := newTestHandler(t, &fakePages{})
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
