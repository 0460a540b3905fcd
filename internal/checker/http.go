package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hazz-dev/statuswatch/internal/config"
)

// httpChecker is the immediate single-request reachability probe.
type httpChecker struct {
	cfg    config.Check
	client *http.Client
}

func newHTTPChecker(c config.Check) *httpChecker {
	return &httpChecker{
		cfg:    c,
		client: &http.Client{Timeout: c.Timeout.Duration},
	}
}

func (c *httpChecker) Check(ctx context.Context) []CheckResult {
	now := time.Now().UTC()
	result := CheckResult{
		CheckID:        c.cfg.ID,
		Timestamp:      now,
		ResponseTimeMs: NoResponseTime,
	}

	var reqBody io.Reader
	if c.cfg.Method == http.MethodPost && c.cfg.APIKeyEnv != "" {
		// Chat-style endpoints reject empty POSTs; send a minimal query.
		body, _ := json.Marshal(map[string]any{
			"inputs":             map[string]any{},
			"query":              "ping",
			"response_mode":      "blocking",
			"user":               "status-checker",
			"auto_generate_name": false,
		})
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, c.cfg.Method, c.cfg.URL, reqBody)
	if err != nil {
		result.Status = StatusDown
		result.Message = fmt.Sprintf("creating request: %v", err)
		return []CheckResult{result}
	}
	if c.cfg.APIKeyEnv != "" {
		if key := os.Getenv(c.cfg.APIKeyEnv); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusDown
		result.Message = err.Error()
		return []CheckResult{result}
	}
	defer resp.Body.Close()
	result.ResponseTimeMs = time.Since(start).Milliseconds()

	if resp.StatusCode == c.cfg.ExpectedStatus {
		if c.cfg.ExpectedBody != "" {
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), c.cfg.ExpectedBody) {
				result.Status = StatusDown
				result.Message = fmt.Sprintf("HTTP %d, body missing %q", resp.StatusCode, c.cfg.ExpectedBody)
				return []CheckResult{result}
			}
			result.Status = StatusUp
			result.Message = fmt.Sprintf("HTTP %d, body contains %q", resp.StatusCode, c.cfg.ExpectedBody)
			return []CheckResult{result}
		}
		result.Status = StatusUp
		result.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return []CheckResult{result}
	}

	// Auth/input rejections still prove the server is responding.
	if !c.hasBodyExpectation() && (resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden) {
		result.Status = StatusUp
		result.Message = fmt.Sprintf("HTTP %d (auth/input error, server is responding)", resp.StatusCode)
		return []CheckResult{result}
	}

	result.Status = StatusDown
	result.Message = fmt.Sprintf("HTTP %d (expected %d)", resp.StatusCode, c.cfg.ExpectedStatus)
	return []CheckResult{result}
}

func (c *httpChecker) hasBodyExpectation() bool {
	return c.cfg.ExpectedBody != ""
}
