// Package notify delivers incident notifications as GitHub issue comments.
// Delivery is fire-and-forget: a failed post is logged by the caller and
// never retried, and it never rolls back incident state already committed.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GitHub posts comments to a fixed issue via the REST API.
type GitHub struct {
	Repo        string // "owner/name"
	IssueNumber int
	Token       string
	BaseURL     string // overridable for tests
	Client      *http.Client
}

// NewGitHub creates a notifier, or nil when notification is not configured.
func NewGitHub(repo string, issueNumber int, token string) *GitHub {
	if repo == "" || issueNumber == 0 {
		return nil
	}
	return &GitHub{
		Repo:        repo,
		IssueNumber: issueNumber,
		Token:       token,
		BaseURL:     "https://api.github.com",
		Client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type commentPayload struct {
	Body string `json:"body"`
}

// Comment posts body as a new comment on the configured issue.
func (g *GitHub) Comment(ctx context.Context, body string) error {
	if g == nil {
		return fmt.Errorf("notification not configured")
	}

	payload, err := json.Marshal(commentPayload{Body: body})
	if err != nil {
		return fmt.Errorf("encoding comment: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", g.BaseURL, g.Repo, g.IssueNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating comment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("posting comment: HTTP %d", resp.StatusCode)
	}
	return nil
}
