package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MailChannel sends through a transactional-mail HTTP API. Both the
// primary and fallback providers speak the same minimal JSON shape, so one
// implementation covers the whole chain.
type MailChannel struct {
	name     string
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewMailChannel(name, endpoint, apiKey, from string) *MailChannel {
	return &MailChannel{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MailChannel) Name() string { return m.name }

// Configured reports whether the channel can be attempted at all. An
// unconfigured channel is skipped by the dispatcher, not failed.
func (m *MailChannel) Configured() bool {
	return m.apiKey != "" && m.from != ""
}

func (m *MailChannel) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}

	payload, err := json.Marshal(map[string]string{
		"from":    m.from,
		"to":      msg.To,
		"subject": msg.Subject,
		"text":    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail via %s: %w", m.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail provider %s returned %d: %s", m.name, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
