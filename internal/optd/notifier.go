package optd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yarikoptic/hnn/internal/optimization"
	"github.com/yarikoptic/hnn/pkg/logger"
	"github.com/yarikoptic/hnn/pkg/models"
)

// CompletionPayload is the JSON body posted to the callback URL when a run
// reaches a terminal state.
type CompletionPayload struct {
	RunID     string                `json:"run_id"`
	State     optimization.State    `json:"state"`
	Outcome   optimization.Outcome  `json:"outcome,omitempty"`
	Run       optimization.Snapshot `json:"run"`
	Params    models.ParameterSet   `json:"params"`
	Error     string                `json:"error,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// Notifier posts run-completion callbacks with retry.
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		baseDelay:  1 * time.Second,
	}
}

// Notify sends the completion callback asynchronously. A {run_id} template
// in the URL is substituted with the actual run ID.
func (n *Notifier) Notify(callbackURL, callbackSecret string, snapshot optimization.Snapshot, params models.ParameterSet) {
	if callbackURL == "" {
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", snapshot.RunID)
	payload := CompletionPayload{
		RunID:     snapshot.RunID,
		State:     snapshot.State,
		Outcome:   snapshot.Outcome,
		Run:       snapshot,
		Params:    params,
		Error:     snapshot.ErrorMessage,
		Timestamp: time.Now().UTC().UnixMilli(),
	}

	go n.send(finalURL, callbackSecret, payload)
}

// send performs the HTTP POST with exponential-backoff retries.
func (n *Notifier) send(callbackURL, callbackSecret string, payload CompletionPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.baseDelay * time.Duration(1<<uint(attempt-1))
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest("POST", callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "hnn-optd/1.0")
		if callbackSecret != "" {
			req.Header.Set("X-Optimization-Callback-Secret", callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent successfully",
				"run_id", payload.RunID,
				"state", payload.State,
				"status_code", resp.StatusCode)
			return
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"state", payload.State,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
