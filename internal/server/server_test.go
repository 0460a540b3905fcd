package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazz-dev/statuswatch/internal/checker"
	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/server"
)

type fakeStore struct {
	latest  map[string]checker.CheckResult
	records []checker.CheckResult
}

func (f *fakeStore) LatestPerCheck(time.Time) (map[string]checker.CheckResult, error) {
	return f.latest, nil
}

func (f *fakeStore) Records(time.Time) ([]checker.CheckResult, error) {
	return f.records, nil
}

func testChecks() []config.Check {
	return []config.Check{
		{ID: "web", Name: "Main Site", Type: "http"},
		{ID: "indexing", Name: "Document Indexing", Type: "indexing"},
	}
}

func newTestServer(store *fakeStore) *httptest.Server {
	return httptest.NewServer(server.New(store, testChecks(), nil).Router())
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	resp, body := get(t, srv.URL+"/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "ok" {
		t.Errorf("unexpected health body %v", got)
	}
}

func TestListChecks(t *testing.T) {
	now := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{
		latest: map[string]checker.CheckResult{
			"web": {
				CheckID:        "web",
				Timestamp:      now,
				Status:         checker.StatusUp,
				ResponseTimeMs: 120,
				Message:        "HTTP 200",
			},
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	resp, body := get(t, srv.URL+"/api/checks")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var envelope struct {
		Data []struct {
			ID             string `json:"id"`
			Status         string `json:"status"`
			ResponseTimeMs int64  `json:"response_time_ms"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatal(err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected every configured check listed, got %d", len(envelope.Data))
	}
	if envelope.Data[0].ID != "web" || envelope.Data[0].Status != "up" {
		t.Errorf("unexpected first check %+v", envelope.Data[0])
	}
	// No history yet: unknown status with the no-measurement sentinel.
	if envelope.Data[1].Status != "unknown" || envelope.Data[1].ResponseTimeMs != checker.NoResponseTime {
		t.Errorf("unexpected second check %+v", envelope.Data[1])
	}
}

func TestGetCheck(t *testing.T) {
	now := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{
		latest: map[string]checker.CheckResult{
			"indexing": {CheckID: "indexing", Timestamp: now, Status: checker.StatusUp, ResponseTimeMs: 3200},
		},
		records: []checker.CheckResult{
			{CheckID: "web", Timestamp: now, Status: checker.StatusUp},
			{CheckID: "indexing", Timestamp: now.Add(-time.Hour), Status: checker.StatusDown, ResponseTimeMs: checker.NoResponseTime},
			{CheckID: "indexing", Timestamp: now, Status: checker.StatusUp, ResponseTimeMs: 3200},
		},
	}
	srv := newTestServer(store)
	defer srv.Close()

	resp, body := get(t, srv.URL+"/api/checks/indexing")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			Status       string `json:"status"`
			TodayResults []struct {
				Status string `json:"status"`
			} `json:"today_results"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Data.Name != "Document Indexing" || envelope.Data.Status != "up" {
		t.Errorf("unexpected detail %+v", envelope.Data)
	}
	// Only this check's records, in event order.
	if len(envelope.Data.TodayResults) != 2 {
		t.Fatalf("expected 2 records for the check, got %d", len(envelope.Data.TodayResults))
	}
	if envelope.Data.TodayResults[0].Status != "down" {
		t.Errorf("unexpected record order %+v", envelope.Data.TodayResults)
	}
}

func TestGetCheckNotFound(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	resp, body := get(t, srv.URL+"/api/checks/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error != "check not found" {
		t.Errorf("unexpected error body %q", envelope.Error)
	}
}
