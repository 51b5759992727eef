package redact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docbrain/internal/util"
)

// Client calls the external PII-redaction service. The service is best-effort:
// by default any failure falls back to the original text with a recorded note
// so ingestion never blocks on it. FailClosed flips that policy and turns
// redaction failures into hard errors.
type Client struct {
	url        string
	failClosed bool
	client     *http.Client
}

func NewClient(url string, timeout time.Duration, failClosed bool) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        url,
		failClosed: failClosed,
		client:     &http.Client{Timeout: timeout},
	}
}

// Redact returns the sanitized text. When the service is unavailable and the
// client is fail-open, the original text comes back together with a non-empty
// note describing the fallback.
func (c *Client) Redact(ctx context.Context, text string) (string, string, error) {
	if c.url == "" {
		return text, "redaction skipped: no redactor configured", nil
	}
	redacted, err := c.call(ctx, text)
	if err != nil {
		if c.failClosed {
			return "", "", fmt.Errorf("redaction failed: %w", err)
		}
		return text, "redaction unavailable, stored original text: " + err.Error(), nil
	}
	return redacted, "", nil
}

func (c *Client) call(ctx context.Context, text string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build redaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("redaction request failed (%v): %w", err, util.ErrExternalService)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("redaction service status %d: %w", resp.StatusCode, util.ErrExternalService)
	}
	var parsed struct {
		RedactedText string `json:"redacted_text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode redaction response: %w", err)
	}
	if parsed.RedactedText == "" {
		return "", fmt.Errorf("redaction service returned empty text: %w", util.ErrExternalService)
	}
	return parsed.RedactedText, nil
}
