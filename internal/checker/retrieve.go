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
)

// retrieveChecker probes the retrieval path of a document index with a
// single semantic-search round trip. Unlike the indexing check this is
// synchronous: the query either returns records or it doesn't.
type retrieveChecker struct {
	cfg    config.Check
	client *http.Client
}

func newRetrieveChecker(c config.Check) *retrieveChecker {
	return &retrieveChecker{
		cfg:    c,
		client: &http.Client{Timeout: c.Timeout.Duration},
	}
}

func (c *retrieveChecker) Check(ctx context.Context) []CheckResult {
	now := time.Now().UTC()
	result := CheckResult{
		CheckID:        c.cfg.ID,
		Timestamp:      now,
		ResponseTimeMs: NoResponseTime,
	}

	dataset := os.Getenv(c.cfg.DatasetIDEnv)
	reqBody, _ := json.Marshal(map[string]any{
		"query": c.cfg.Query,
		"retrieval_model": map[string]any{
			"search_method":           "semantic_search",
			"reranking_enable":        false,
			"top_k":                   1,
			"score_threshold_enabled": false,
		},
	})

	url := fmt.Sprintf("%s/datasets/%s/retrieve", c.cfg.BaseURL, dataset)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		result.Status = StatusDown
		result.Message = fmt.Sprintf("creating request: %v", err)
		return []CheckResult{result}
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv(c.cfg.APIKeyEnv))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusDown
		result.Message = err.Error()
		return []CheckResult{result}
	}
	defer resp.Body.Close()
	result.ResponseTimeMs = time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusDown
		result.Message = fmt.Sprintf("HTTP %d (expected 200)", resp.StatusCode)
		return []CheckResult{result}
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Status = StatusDown
		result.Message = fmt.Sprintf("decoding response: %v", err)
		return []CheckResult{result}
	}
	records, ok := body["records"]
	if !ok {
		result.Status = StatusDown
		result.Message = "response missing 'records' field"
		return []CheckResult{result}
	}

	var recs []json.RawMessage
	if err := json.Unmarshal(records, &recs); err != nil {
		result.Status = StatusDown
		result.Message = fmt.Sprintf("decoding records: %v", err)
		return []CheckResult{result}
	}

	result.Status = StatusUp
	result.Message = fmt.Sprintf("HTTP 200, %d record(s) returned", len(recs))
	return []CheckResult{result}
}
