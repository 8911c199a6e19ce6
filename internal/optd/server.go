package optd

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/yarikoptic/hnn/internal/optimization"
	"github.com/yarikoptic/hnn/internal/storage"
	"github.com/yarikoptic/hnn/pkg/logger"
)

// HTTPServer exposes the optimization run over JSON endpoints: status and
// current parameters, trial history, the progress log (optionally as an
// SSE stream), cancellation, and Prometheus metrics.
type HTTPServer struct {
	mux      *http.ServeMux
	driver   *optimization.Driver
	trials   storage.Store
	progress *ProgressLog

	// cancel stops the run; wired to the driver's Cancel by the caller.
	cancel func()
}

func NewHTTPServer(driver *optimization.Driver, trials storage.Store, progress *ProgressLog, metricsHandler http.Handler, cancel func()) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		driver:   driver,
		trials:   trials,
		progress: progress,
		cancel:   cancel,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/status", s.handleStatus)
	s.mux.HandleFunc("/v1/trials", s.handleTrials)
	s.mux.HandleFunc("/v1/progress", s.handleProgress)
	s.mux.HandleFunc("/v1/cancel", s.handleCancel)
	if metricsHandler != nil {
		s.mux.Handle("/metrics", metricsHandler)
	}

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus handles GET /v1/status
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run":    s.driver.State().Snapshot(),
		"params": s.driver.Params(),
	})
}

// handleTrials handles GET /v1/trials with optional step and limit filters
func (s *HTTPServer) handleTrials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	step := -1
	if stepStr := r.URL.Query().Get("step"); stepStr != "" {
		parsed, err := strconv.Atoi(stepStr)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid step")
			return
		}
		step = parsed
	}

	runID := s.driver.State().RunID()
	records, err := s.trials.ListTrials(r.Context(), runID, step, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	trialsJSON := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		trialsJSON = append(trialsJSON, map[string]any{
			"run_id":    rec.RunID,
			"step":      rec.Step,
			"iteration": rec.Iteration,
			"params":    rec.Params,
			"werr":      rec.WErr,
			"best":      rec.Best,
			"at":        rec.At.Format(time.RFC3339Nano),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"trials": trialsJSON,
		"count":  len(trialsJSON),
	})
}

// handleProgress handles GET /v1/progress; ?stream=1 switches to SSE
func (s *HTTPServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.URL.Query().Get("stream") == "1" {
		s.streamProgress(w, r)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.progress.Entries(),
	})
}

func (s *HTTPServer) streamProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before replay so no entry falls in the gap; duplicates
	// are filtered by sequence number.
	live, cancel := s.progress.Subscribe()
	defer cancel()

	var lastSeq int64
	for _, entry := range s.progress.Entries() {
		s.sendSSEEvent(w, "progress", entry)
		lastSeq = entry.Seq
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-live:
			if !ok {
				return
			}
			if entry.Seq <= lastSeq {
				continue
			}
			lastSeq = entry.Seq
			s.sendSSEEvent(w, "progress", entry)
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// handleCancel handles POST /v1/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	logger.Info("run cancellation requested (HTTP)", "run_id", s.driver.State().RunID())
	s.cancel()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": s.driver.State().Snapshot(),
	})
}

// sendSSEEvent sends a Server-Sent Event. Errors are logged but not
// returned; the stream is best-effort.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}
	if _, err := w.Write([]byte("event: " + eventType + "\n")); err != nil {
		logger.Error("failed to write SSE event header", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: " + string(jsonData) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event data", "error", err)
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
