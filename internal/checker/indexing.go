package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

// indexingProbe checks a document-indexing pipeline: it uploads a tiny text
// document, and a later invocation resolves the batch's indexing status and
// deletes the document. Multiple accounts are rotated round-robin so the
// probe load is spread across datasets.
type indexingProbe struct {
	checkID  string
	baseURL  string
	accounts []config.Account
	client   *http.Client
}

// indexingState is the pending-state payload. Account was added after the
// first deployed schema; records written without it decode as account 0.
type indexingState struct {
	DocumentID string `json:"document_id"`
	BatchID    string `json:"batch_id"`
	Account    int    `json:"account"`
}

func newIndexingProbe(c config.Check) *indexingProbe {
	return &indexingProbe{
		checkID:  c.ID,
		baseURL:  c.BaseURL,
		accounts: c.Accounts,
		client:   &http.Client{Timeout: c.Timeout.Duration},
	}
}

func (p *indexingProbe) account(i int) config.Account {
	return p.accounts[i%len(p.accounts)]
}

func (p *indexingProbe) headers(req *http.Request, acct config.Account) {
	req.Header.Set("Authorization", "Bearer "+os.Getenv(acct.APIKeyEnv))
	req.Header.Set("Content-Type", "application/json")
}

func (p *indexingProbe) result(ts time.Time, status Status, ms int64, msg string) CheckResult {
	return CheckResult{
		CheckID:        p.checkID,
		Timestamp:      ts,
		Status:         status,
		ResponseTimeMs: ms,
		Message:        msg,
	}
}

func (p *indexingProbe) verify(ctx context.Context, st statestore.PendingState) CheckResult {
	var pending indexingState
	if err := json.Unmarshal(st.Payload, &pending); err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("decoding pending state: %v", err))
	}
	acct := p.account(pending.Account)
	dataset := os.Getenv(acct.DatasetIDEnv)

	url := fmt.Sprintf("%s/datasets/%s/documents/%s/indexing-status", p.baseURL, dataset, pending.BatchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("creating status request: %v", err))
	}
	p.headers(req, acct)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("checking indexing status: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("status check failed: HTTP %d", resp.StatusCode))
	}

	var body struct {
		Data []struct {
			IndexingStatus      string  `json:"indexing_status"`
			Error               string  `json:"error"`
			ProcessingStartedAt float64 `json:"processing_started_at"`
			CompletedAt         float64 `json:"completed_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("decoding status response: %v", err))
	}
	if len(body.Data) == 0 {
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			"status check returned empty data")
	}

	doc := body.Data[0]
	switch doc.IndexingStatus {
	case "completed":
		durationMs := int64((doc.CompletedAt - doc.ProcessingStartedAt) * 1000)
		return p.result(st.InitiatedAt, StatusUp, durationMs,
			fmt.Sprintf("indexing completed in %.1fs", float64(durationMs)/1000))
	case "error":
		msg := doc.Error
		if msg == "" {
			msg = "unknown error"
		}
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			"indexing failed: "+msg)
	default:
		return p.result(st.InitiatedAt, StatusDown, NoResponseTime,
			fmt.Sprintf("indexing not completed within check interval (status: %s)", doc.IndexingStatus))
	}
}

func (p *indexingProbe) cleanup(ctx context.Context, st statestore.PendingState) {
	var pending indexingState
	if err := json.Unmarshal(st.Payload, &pending); err != nil {
		return
	}
	acct := p.account(pending.Account)
	dataset := os.Getenv(acct.DatasetIDEnv)

	url := fmt.Sprintf("%s/datasets/%s/documents/%s", p.baseURL, dataset, pending.DocumentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	p.headers(req, acct)

	resp, err := p.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (p *indexingProbe) initiate(ctx context.Context, now time.Time, prev *statestore.PendingState) (*statestore.PendingState, CheckResult) {
	idx := 0
	if prev != nil {
		var pending indexingState
		if err := json.Unmarshal(prev.Payload, &pending); err == nil {
			idx = (pending.Account + 1) % len(p.accounts)
		}
	}
	acct := p.account(idx)
	dataset := os.Getenv(acct.DatasetIDEnv)

	reqBody, _ := json.Marshal(map[string]any{
		"name":               "status-check-" + now.Format("20060102-150405"),
		"text":               "ping",
		"indexing_technique": "economy",
		"process_rule":       map[string]string{"mode": "automatic"},
	})

	url := fmt.Sprintf("%s/datasets/%s/document/create-by-text", p.baseURL, dataset)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, p.result(now, StatusDown, NoResponseTime,
			fmt.Sprintf("creating upload request: %v", err))
	}
	p.headers(req, acct)

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsedMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, p.result(now, StatusDown, NoResponseTime,
			fmt.Sprintf("uploading document: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.result(now, StatusDown, elapsedMs,
			fmt.Sprintf("upload failed: HTTP %d", resp.StatusCode))
	}

	var body struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
		Batch string `json:"batch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, p.result(now, StatusDown, elapsedMs,
			fmt.Sprintf("decoding upload response: %v", err))
	}
	if body.Document.ID == "" || body.Batch == "" {
		return nil, p.result(now, StatusDown, elapsedMs,
			"upload failed: missing document or batch id in response")
	}

	payload, _ := json.Marshal(indexingState{
		DocumentID: body.Document.ID,
		BatchID:    body.Batch,
		Account:    idx,
	})
	st := &statestore.PendingState{
		CheckID:     p.checkID,
		InitiatedAt: now,
		Payload:     payload,
	}
	res := p.result(now, StatusUp, NoResponseTime, "document submitted, indexing verification pending")
	res.Provisional = true
	return st, res
}
