package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

// Caller posts trigger payloads to user-configured webhook URLs.
type Caller struct {
	httpClient *http.Client
}

func NewCaller() *Caller {
	return &Caller{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Caller) Call(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "webhook call", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrTemporary, "webhook call", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook call: status %d", resp.StatusCode)
	}
	return nil
}
