package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

// workflowProbe checks a webhook-triggered workflow: it posts a payload
// carrying a fresh trigger id, and a later invocation searches the workflow
// run log for that id to see whether the run finished. There is no remote
// artifact to clean up; the remote keeps its own run log.
type workflowProbe struct {
	checkID         string
	triggerURL      string
	triggerTokenEnv string
	baseURL         string
	apiKeyEnv       string
	client          *http.Client
}

type workflowState struct {
	TriggerID string `json:"trigger_id"`
}

func newWorkflowProbe(c config.Check) *workflowProbe {
	return &workflowProbe{
		checkID:         c.ID,
		triggerURL:      c.TriggerURL,
		triggerTokenEnv: c.TriggerTokenEnv,
		baseURL:         c.BaseURL,
		apiKeyEnv:       c.APIKeyEnv,
		client:          &http.Client{Timeout: c.Timeout.Duration},
	}
}

func (p *workflowProbe) result(ts time.Time, status Status, ms int64, msg string) CheckResult {
	return CheckResult{
		CheckID:        p.checkID,
		Timestamp:      ts,
		Status:         status,
		ResponseTimeMs: ms,
		Message:        msg,
	}
}

func (p *workflowProbe) verify(ctx context.Context, st statestore.PendingState) CheckResult {
	var pending workflowState
	if err := json.Unmarshal(st.Payload, &pending); err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("decoding pending state: %v", err))
	}

	logsURL := fmt.Sprintf("%s/workflows/logs?keyword=%s&limit=1", p.baseURL, url.QueryEscape(pending.TriggerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logsURL, nil)
	if err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("creating logs request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv(p.apiKeyEnv))

	resp, err := p.client.Do(req)
	if err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("fetching workflow logs: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("fetching workflow logs: HTTP %d", resp.StatusCode))
	}

	var body struct {
		Data []struct {
			WorkflowRun struct {
				Status      string  `json:"status"`
				Error       string  `json:"error"`
				ElapsedTime float64 `json:"elapsed_time"`
			} `json:"workflow_run"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("decoding logs response: %v", err))
	}
	if len(body.Data) == 0 {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			"workflow trigger not processed within check interval")
	}

	run := body.Data[0].WorkflowRun
	switch run.Status {
	case "succeeded":
		return p.result(st.InitiatedAt, StatusUp, int64(run.ElapsedTime*1000),
			fmt.Sprintf("workflow completed in %.1fs", run.ElapsedTime))
	case "failed":
		msg := run.Error
		if msg == "" {
			msg = "unknown error"
		}
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			"workflow failed: "+msg)
	default:
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("workflow not completed (status: %s)", run.Status))
	}
}

func (p *workflowProbe) cleanup(ctx context.Context, st statestore.PendingState) {}

func (p *workflowProbe) initiate(ctx context.Context, now time.Time, prev *statestore.PendingState) (*statestore.PendingState, CheckResult) {
	triggerID := "status-check-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	reqBody, _ := json.Marshal(map[string]any{
		"id":        triggerID,
		"timestamp": now.Unix(),
	})

	fullURL := p.triggerURL + "/" + os.Getenv(p.triggerTokenEnv)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, p.result(now, StatusDown, NoResponseTime,
			fmt.Sprintf("creating trigger request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsedMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, p.result(now, StatusDown, NoResponseTime,
			fmt.Sprintf("triggering workflow: %v", err))
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.result(now, StatusDown, elapsedMs,
			fmt.Sprintf("workflow trigger failed: HTTP %d", resp.StatusCode))
	}

	payload, _ := json.Marshal(workflowState{TriggerID: triggerID})
	st := &statestore.PendingState{
		CheckID:     p.checkID,
		InitiatedAt: now,
		Payload:     payload,
	}
	res := p.result(now, StatusUp, NoResponseTime, "workflow triggered, verification pending")
	res.Provisional = true
	return st, res
}
