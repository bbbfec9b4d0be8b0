package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hakim/bughunter/internal/models"
)

// Notifier sends completion notifications to a webhook.
type Notifier struct {
	WebhookURL string // if empty, no notifications
	Client     *http.Client
	// Attempts bounds delivery tries (default: 3)
	Attempts int
}

// completionPayload is the JSON body posted to the webhook endpoint.
type completionPayload struct {
	Domain         string         `json:"domain"`
	SessionID      string         `json:"session_id"`
	Status         string         `json:"status"`
	TotalFound     int            `json:"total_found"`
	Checked        int            `json:"checked"`
	Wildcard       bool           `json:"wildcard"`
	Risk           map[string]int `json:"risk"`
	HighRisk       []string       `json:"high_risk,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Error          string         `json:"error,omitempty"`
	Hits           []hitNotice    `json:"hits,omitempty"`
}

type hitNotice struct {
	Subdomain string `json:"subdomain"`
	RiskLevel string `json:"risk_level"`
	Source    string `json:"source"`
}

// SendCompletion posts a JSON summary of session to the webhook URL.
// Returns nil if WebhookURL is empty (no-op). Errors are non-fatal; callers
// should treat them as warnings. 5xx answers and transport errors are retried.
func (n *Notifier) SendCompletion(ctx context.Context, session *models.ScanSession) error {
	if n == nil || n.WebhookURL == "" {
		return nil
	}

	payload := completionPayload{
		Domain:     session.Domain,
		SessionID:  session.ID,
		Status:     string(session.Status),
		TotalFound: session.TotalFound,
		Checked:    session.Summary.Checked,
		Wildcard:   session.WildcardDetected,
		Risk:       make(map[string]int, len(session.Summary.Risk)),
		Error:      session.Error,
	}
	for level, count := range session.Summary.Risk {
		payload.Risk[string(level)] = count
	}
	for _, hit := range session.LiveResults {
		payload.Hits = append(payload.Hits, hitNotice{
			Subdomain: hit.Subdomain,
			RiskLevel: string(hit.RiskLevel),
			Source:    string(hit.Source),
		})
		if hit.RiskLevel == models.RiskHigh {
			payload.HighRisk = append(payload.HighRisk, hit.Subdomain)
		}
	}
	if session.CompletedAt != nil {
		payload.ElapsedSeconds = session.CompletedAt.Sub(session.StartedAt).Seconds()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling payload: %w", err)
	}

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	attempts := n.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("notify: building request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("notify: posting to %s: %w", n.WebhookURL, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("notify: webhook returned non-2xx status %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	return backoff.Retry(post, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
}
