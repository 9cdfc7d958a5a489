package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPAvatar posts speech to an avatar renderer at {baseURL}/speak.
type HTTPAvatar struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAvatar creates an HTTP avatar client. Timeouts come from the
// caller's context.
func NewHTTPAvatar(baseURL string, client *http.Client) *HTTPAvatar {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPAvatar{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type speakRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (a *HTTPAvatar) Send(ctx context.Context, text string, metadata map[string]string) error {
	body, err := json.Marshal(speakRequest{Text: text, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("marshaling speak request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/speak", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building speak request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to avatar: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("avatar responded %s", resp.Status)
	}
	return nil
}
