// Package mailer is the HTTP client for the separate mail microservice that
// delivers digest emails.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"recapbot/internal/metrics"
)

// requestTimeout matches the mail service's own worst-case send path.
const requestTimeout = 60 * time.Second

// DigestRequest is the payload the mail service accepts.
type DigestRequest struct {
	TeamID    string `json:"team_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// SendDigest posts a digest email to the mail service.
func (c *Client) SendDigest(ctx context.Context, req DigestRequest) error {
	if c.baseURL == "" {
		return fmt.Errorf("mail service not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal digest request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/digests", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build digest request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.MailServiceCalls.WithLabelValues("error").Inc()
		return fmt.Errorf("mail service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.MailServiceCalls.WithLabelValues("error").Inc()
		return fmt.Errorf("mail service returned status %d", resp.StatusCode)
	}

	metrics.MailServiceCalls.WithLabelValues("success").Inc()
	return nil
}
