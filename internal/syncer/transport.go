package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPPusher delivers sync batches to the remote endpoint. Any non-2xx
// response or transport error is a retryable failure; resending
// unacknowledged records is safe because the remote upserts by id.
type HTTPPusher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPPusher builds a pusher for the given endpoint.
func NewHTTPPusher(endpoint string, timeout time.Duration) *HTTPPusher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPusher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Push sends one batch.
func (p *HTTPPusher) Push(ctx context.Context, batch Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("syncer: encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("syncer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("syncer: push: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("syncer: push: remote returned %d", resp.StatusCode)
	}
	return nil
}
