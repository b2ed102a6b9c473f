package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"livewatch/internal/apperr"
	"livewatch/internal/capture"
	"livewatch/internal/livestate"

	"github.com/go-chi/chi/v5"
)

// DefaultLogLimit is how many recent entries GET /logs returns without a limit.
const DefaultLogLimit = 50

// Handler exposes the monitor HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/status/{account}", h.GetStatus)
	r.Post("/capture/{account}", h.Capture)
	r.Get("/captures", h.ListCaptures)
	r.Get("/captures/{id}", h.GetCapture)
	r.Get("/logs/{account}", h.GetLogs)
	r.Post("/logs/{account}", h.AppendLog)
}

type errorBody struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
}

type logsBody struct {
	Account string     `json:"account"`
	Total   int        `json:"total"`
	Entries []LogEntry `json:"entries"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus handles GET /status/{account}[?refresh=true].
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	res, err := h.svc.Status(r.Context(), account, refresh)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Capture handles POST /capture/{account}[?async=true]. Synchronous captures
// answer with the terminal job; a failed job is served with the status code
// of its failure reason.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))

	if async {
		job, err := h.svc.StartCapture(account)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.log.Info("capture queued", slog.String("account", job.Account), slog.String("job_id", job.ID))
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	job := h.svc.Capture(r.Context(), account)
	if err := job.Err(); err != nil {
		writeJSON(w, apperr.HTTPStatus(err), job)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListCaptures handles GET /captures.
func (h *Handler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.Jobs()
	if jobs == nil {
		jobs = []capture.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetCapture handles GET /captures/{id}.
func (h *Handler) GetCapture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.svc.Job(id)
	if !ok {
		h.writeError(w, apperr.New(apperr.KindNotFound, "no capture with id "+id))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetLogs handles GET /logs/{account}[?limit=N]. limit=0 returns everything.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	limit := DefaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, apperr.New(apperr.KindInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := h.svc.Logs(account)
	if err != nil {
		h.writeError(w, err)
		return
	}
	total := len(entries)
	if limit > 0 && total > limit {
		entries = entries[total-limit:]
	}
	writeJSON(w, http.StatusOK, logsBody{Account: livestate.Normalize(account), Total: total, Entries: entries})
}

// AppendLog handles POST /logs/{account}.
// Body: { "user": "viewer1", "comment": "hello", "timestamp": "..." }.
func (h *Handler) AppendLog(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var e LogEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		h.log.Debug("invalid log entry body", slog.String("error", err.Error()))
		h.writeError(w, apperr.New(apperr.KindInvalidInput, "body must be a JSON log entry"))
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if err := h.svc.AppendLog(account, e); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	if status >= 500 {
		h.log.Error("request failed", slog.String("reason", string(kind)), slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody{Error: kind, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
