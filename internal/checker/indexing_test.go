package checker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazz-dev/statuswatch/internal/checker"
	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

// fakeIndexAPI fakes the dataset API: document upload, indexing status,
// and document delete.
type fakeIndexAPI struct {
	mu             sync.Mutex
	uploads        []string // dataset ids that received an upload
	deletes        []string // document ids deleted
	uploadStatus   int
	indexingStatus string
	indexingError  string
	startedAt      float64
	completedAt    float64
	emptyData      bool
	lastAuth       string
	nextDoc        int
}

func (f *fakeIndexAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastAuth = r.Header.Get("Authorization")

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/document/create-by-text"):
			if f.uploadStatus != 0 && f.uploadStatus != http.StatusOK {
				w.WriteHeader(f.uploadStatus)
				return
			}
			f.nextDoc++
			f.uploads = append(f.uploads, parts[1])
			json.NewEncoder(w).Encode(map[string]any{
				"document": map[string]string{"id": fmt.Sprintf("doc-%d", f.nextDoc)},
				"batch":    fmt.Sprintf("batch-%d", f.nextDoc),
			})
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/indexing-status"):
			if f.emptyData {
				json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{
					"indexing_status":       f.indexingStatus,
					"error":                 f.indexingError,
					"processing_started_at": f.startedAt,
					"completed_at":          f.completedAt,
				}},
			})
		case r.Method == http.MethodDelete:
			f.deletes = append(f.deletes, parts[len(parts)-1])
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func openTestStore(t *testing.T) *statestore.DB {
	t.Helper()
	db, err := statestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("opening state store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func indexingCheck(t *testing.T, baseURL string, accounts int) config.Check {
	t.Helper()
	c := config.Check{
		ID:      "indexing",
		Name:    "Document Indexing",
		Type:    "indexing",
		BaseURL: baseURL,
		Timeout: config.Duration{Duration: 5 * time.Second},
	}
	for i := 0; i < accounts; i++ {
		dsEnv := fmt.Sprintf("TEST_IDX_DATASET_%d", i)
		keyEnv := fmt.Sprintf("TEST_IDX_KEY_%d", i)
		t.Setenv(dsEnv, fmt.Sprintf("ds-%d", i))
		t.Setenv(keyEnv, fmt.Sprintf("key-%d", i))
		c.Accounts = append(c.Accounts, config.Account{DatasetIDEnv: dsEnv, APIKeyEnv: keyEnv})
	}
	return c
}

func TestIndexing_FirstCycleUploadsAndPersistsState(t *testing.T) {
	api := &fakeIndexAPI{indexingStatus: "completed"}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	chk, err := checker.New(indexingCheck(t, srv.URL, 1), db, nil)
	if err != nil {
		t.Fatal(err)
	}

	results := chk.Check(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Status != checker.StatusUp || !r.Provisional {
		t.Errorf("expected provisional up, got %+v", r)
	}
	if r.ResponseTimeMs != checker.NoResponseTime {
		t.Errorf("provisional result should not be timed, got %d", r.ResponseTimeMs)
	}

	st, err := db.LoadPending(context.Background(), "indexing")
	if err != nil {
		t.Fatal(err)
	}
	if st == nil {
		t.Fatal("expected pending state after upload")
	}
	if api.lastAuth != "Bearer key-0" {
		t.Errorf("expected bearer auth from account env, got %q", api.lastAuth)
	}
}

func TestIndexing_VerifyCompletedCarriesInitiationTimestamp(t *testing.T) {
	api := &fakeIndexAPI{indexingStatus: "completed", startedAt: 100, completedAt: 103.5}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	chk, err := checker.New(indexingCheck(t, srv.URL, 1), db, nil)
	if err != nil {
		t.Fatal(err)
	}

	first := chk.Check(context.Background())
	initiatedAt := first[0].Timestamp

	second := chk.Check(context.Background())
	if len(second) != 2 {
		t.Fatalf("expected confirmed + provisional, got %d results", len(second))
	}
	confirmed := second[0]
	if confirmed.Status != checker.StatusUp {
		t.Fatalf("expected up, got %q: %s", confirmed.Status, confirmed.Message)
	}
	if confirmed.Provisional {
		t.Error("verify outcome must not be provisional")
	}
	if !confirmed.Timestamp.Equal(initiatedAt) {
		t.Errorf("confirmed result must carry initiation time %v, got %v", initiatedAt, confirmed.Timestamp)
	}
	if confirmed.ResponseTimeMs != 3500 {
		t.Errorf("expected remote-reported 3500ms, got %d", confirmed.ResponseTimeMs)
	}
	if len(api.deletes) != 1 {
		t.Errorf("expected best-effort document delete, got %d", len(api.deletes))
	}
}

func TestIndexing_VerifyError(t *testing.T) {
	api := &fakeIndexAPI{indexingStatus: "error", indexingError: "embedding quota exceeded"}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	chk, _ := checker.New(indexingCheck(t, srv.URL, 1), db, nil)

	chk.Check(context.Background())
	results := chk.Check(context.Background())
	confirmed := results[0]
	if confirmed.Status != checker.StatusDown {
		t.Fatalf("expected down, got %q", confirmed.Status)
	}
	if !strings.Contains(confirmed.Message, "embedding quota exceeded") {
		t.Errorf("expected remote error in message, got %q", confirmed.Message)
	}
	if confirmed.ResponseTimeMs != checker.NoResponseTime {
		t.Errorf("failed verify should not be timed, got %d", confirmed.ResponseTimeMs)
	}
}

func TestIndexing_VerifyNotCompletedInTime(t *testing.T) {
	api := &fakeIndexAPI{indexingStatus: "indexing"}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	chk, _ := checker.New(indexingCheck(t, srv.URL, 1), db, nil)

	chk.Check(context.Background())
	results := chk.Check(context.Background())
	confirmed := results[0]
	if confirmed.Status != checker.StatusDown {
		t.Fatalf("expected down for non-terminal status, got %q", confirmed.Status)
	}
	if !strings.Contains(confirmed.Message, "not completed") {
		t.Errorf("expected not-completed message, got %q", confirmed.Message)
	}
	// The stuck document is still cleaned up and the state cleared.
	if len(api.deletes) != 1 {
		t.Errorf("expected cleanup of the stuck document, got %d deletes", len(api.deletes))
	}
}

func TestIndexing_VerifyEmptyData(t *testing.T) {
	api := &fakeIndexAPI{emptyData: true}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	chk, _ := checker.New(indexingCheck(t, srv.URL, 1), db, nil)

	chk.Check(context.Background())
	results := chk.Check(context.Background())
	if results[0].Status != checker.StatusDown {
		t.Fatalf("expected down for empty data, got %q", results[0].Status)
	}
}

func TestIndexing_UploadFailureLeavesCleanSlate(t *testing.T) {
	api := &fakeIndexAPI{uploadStatus: http.StatusInternalServerError}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	chk, _ := checker.New(indexingCheck(t, srv.URL, 1), db, nil)

	results := chk.Check(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Status != checker.StatusDown || results[0].Provisional {
		t.Errorf("expected non-provisional down, got %+v", results[0])
	}
	st, err := db.LoadPending(context.Background(), "indexing")
	if err != nil {
		t.Fatal(err)
	}
	if st != nil {
		t.Error("failed upload must not persist pending state")
	}
}

func TestIndexing_RoundRobinRotation(t *testing.T) {
	api := &fakeIndexAPI{indexingStatus: "completed"}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	chk, _ := checker.New(indexingCheck(t, srv.URL, 3), db, nil)

	for i := 0; i < 4; i++ {
		chk.Check(context.Background())
	}

	want := []string{"ds-0", "ds-1", "ds-2", "ds-0"}
	if len(api.uploads) != len(want) {
		t.Fatalf("expected %d uploads, got %v", len(want), api.uploads)
	}
	for i := range want {
		if api.uploads[i] != want[i] {
			t.Fatalf("expected upload sequence %v, got %v", want, api.uploads)
		}
	}
}

func TestIndexing_OldStateWithoutAccountDefaultsToZero(t *testing.T) {
	api := &fakeIndexAPI{indexingStatus: "completed"}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	db := openTestStore(t)
	// State written by an older schema: no account field.
	err := db.SavePending(context.Background(), statestore.PendingState{
		CheckID:     "indexing",
		InitiatedAt: time.Now().UTC().Add(-time.Hour),
		Payload:     []byte(`{"document_id":"doc-old","batch_id":"batch-old"}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	chk, _ := checker.New(indexingCheck(t, srv.URL, 3), db, nil)
	results := chk.Check(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Old state is account 0, so the new initiation rotates to account 1.
	if len(api.uploads) != 1 || api.uploads[0] != "ds-1" {
		t.Errorf("expected rotation to ds-1 from legacy state, got %v", api.uploads)
	}
}
