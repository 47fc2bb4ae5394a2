// Package jobs carries the background tasks run by the worker binary.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSyncRetry periodically pokes the daemon's sync trigger so an
	// idle terminal eventually reflushes records left pending by an
	// earlier offline period.
	TaskSyncRetry = "sync:retry"
)

// SyncRetryPayload carries the daemon trigger endpoint.
type SyncRetryPayload struct {
	TriggerURL string `json:"triggerUrl"`
}

// NewSyncRetryTask constructs an Asynq task.
func NewSyncRetryTask(triggerURL string) (*asynq.Task, error) {
	if triggerURL == "" {
		return nil, fmt.Errorf("jobs: sync retry needs a trigger url")
	}
	data, err := json.Marshal(SyncRetryPayload{TriggerURL: triggerURL})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncRetry, data), nil
}

var retryClient = &http.Client{Timeout: 10 * time.Second}

// HandleSyncRetryTask processes TaskSyncRetry tasks.
func HandleSyncRetryTask(ctx context.Context, t *asynq.Task) error {
	var payload SyncRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.TriggerURL, nil)
	if err != nil {
		return asynq.SkipRetry
	}
	resp, err := retryClient.Do(req)
	if err != nil {
		return fmt.Errorf("jobs: sync trigger: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("jobs: sync trigger returned %d", resp.StatusCode)
	}
	return nil
}
