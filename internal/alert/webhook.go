package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/logging"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 2
)

// Sender posts payloads with retry on 5xx and connection errors.
type Sender struct {
	http *retryablehttp.Client
}

// NewSender creates a Sender with the default retry policy.
func NewSender(logger zerolog.Logger) *Sender {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = requestTimeout
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = logging.RetryLogger{Logger: logger}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Sender{http: rc}
}

// Send posts an event to a webhook endpoint.
func (s *Sender) Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
}
