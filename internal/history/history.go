// Package history is the append-only result log: one JSONL file per UTC day,
// one line per CheckResult, in event order. It is the sole persistent check
// history and the only input to incident evaluation and the status API.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/hazz-dev/statuswatch/internal/checker"
)

const timeLayout = "2006-01-02T15:04:05Z"

// record is the wire form of one log line.
type record struct {
	CheckID        string `json:"check_id"`
	Timestamp      string `json:"timestamp"`
	Status         string `json:"status"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Message        string `json:"message"`
	Provisional    bool   `json:"provisional,omitempty"`
}

func toRecord(r checker.CheckResult) record {
	return record{
		CheckID:        r.CheckID,
		Timestamp:      r.Timestamp.UTC().Format(timeLayout),
		Status:         string(r.Status),
		ResponseTimeMs: r.ResponseTimeMs,
		Message:        r.Message,
		Provisional:    r.Provisional,
	}
}

func (r record) toResult() (checker.CheckResult, error) {
	ts, err := time.Parse(timeLayout, r.Timestamp)
	if err != nil {
		return checker.CheckResult{}, fmt.Errorf("parsing timestamp %q: %w", r.Timestamp, err)
	}
	return checker.CheckResult{
		CheckID:        r.CheckID,
		Timestamp:      ts,
		Status:         checker.Status(r.Status),
		ResponseTimeMs: r.ResponseTimeMs,
		Message:        r.Message,
		Provisional:    r.Provisional,
	}, nil
}

// Log reads and appends day files under a data directory.
type Log struct {
	dir string
}

func New(dir string) *Log {
	return &Log{dir: dir}
}

// dayPath returns the file for a UTC day: <dir>/YYYY/MM/YYYY-MM-DD.jsonl.
func (l *Log) dayPath(day time.Time) string {
	day = day.UTC()
	return filepath.Join(l.dir, day.Format("2006"), day.Format("01"), day.Format("2006-01-02")+".jsonl")
}

// Append writes results to the day file for now, creating it as needed.
func (l *Log) Append(results []checker.CheckResult, now time.Time) error {
	if len(results) == 0 {
		return nil
	}

	path := l.dayPath(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, r := range results {
		line, err := json.Marshal(toRecord(r))
		if err != nil {
			return fmt.Errorf("encoding result for %q: %w", r.CheckID, err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing log file %q: %w", path, err)
	}
	return nil
}

// readDay returns all records of one day file with superseded provisional
// records dropped: a provisional record is kept only while no confirmed
// record with the same check id and timestamp exists. A missing day file is
// not an error; it returns no records.
func (l *Log) readDay(day time.Time) ([]checker.CheckResult, error) {
	path := l.dayPath(day)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", path, err)
	}
	defer f.Close()

	var results []checker.CheckResult
	confirmed := make(map[string]bool)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decoding log line in %q: %w", path, err)
		}
		r, err := rec.toResult()
		if err != nil {
			return nil, fmt.Errorf("log line in %q: %w", path, err)
		}
		results = append(results, r)
		if !r.Provisional {
			confirmed[rec.CheckID+"\x00"+rec.Timestamp] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading log file %q: %w", path, err)
	}

	kept := results[:0]
	for _, r := range results {
		if r.Provisional && confirmed[r.CheckID+"\x00"+r.Timestamp.UTC().Format(timeLayout)] {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// Records returns the surviving records of one UTC day in event order.
func (l *Log) Records(day time.Time) ([]checker.CheckResult, error) {
	return l.readDay(day)
}

// LatestPerCheck returns the most recent record per check from the active
// window: today's file, or yesterday's if today's does not exist yet. An
// empty window yields an empty map.
func (l *Log) LatestPerCheck(now time.Time) (map[string]checker.CheckResult, error) {
	return l.latest(now, false)
}

// LatestConfirmed is LatestPerCheck restricted to confirmed records:
// provisional records are skipped entirely, so a check whose newest record
// is still awaiting verification resolves to its newest confirmed one.
func (l *Log) LatestConfirmed(now time.Time) (map[string]checker.CheckResult, error) {
	return l.latest(now, true)
}

func (l *Log) latest(now time.Time, confirmedOnly bool) (map[string]checker.CheckResult, error) {
	now = now.UTC()

	var records []checker.CheckResult
	for daysAgo := 0; daysAgo < 2; daysAgo++ {
		day := now.AddDate(0, 0, -daysAgo)
		if _, err := os.Stat(l.dayPath(day)); os.IsNotExist(err) {
			continue
		}
		rs, err := l.readDay(day)
		if err != nil {
			return nil, err
		}
		records = rs
		break
	}

	latest := make(map[string]checker.CheckResult)
	for _, r := range records {
		if confirmedOnly && r.Provisional {
			continue
		}
		prev, ok := latest[r.CheckID]
		if !ok || r.Timestamp.After(prev.Timestamp) {
			latest[r.CheckID] = r
		}
	}
	return latest, nil
}

// Cleanup removes day files older than retentionDays and prunes emptied
// month and year directories. It returns the number of files removed.
func (l *Log) Cleanup(retentionDays int, now time.Time) (int, error) {
	cutoff := now.UTC().AddDate(0, 0, -retentionDays)
	cutoffDay := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)

	var files []string
	err := filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning data directory: %w", err)
	}

	removed := 0
	for _, path := range files {
		stem := filepath.Base(path)
		stem = stem[:len(stem)-len(".jsonl")]
		day, err := time.Parse("2006-01-02", stem)
		if err != nil {
			continue
		}
		if !day.Before(cutoffDay) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("removing %q: %w", path, err)
		}
		removed++
		// Prune month then year directories once empty.
		for _, dir := range []string{filepath.Dir(path), filepath.Dir(filepath.Dir(path))} {
			os.Remove(dir)
		}
	}
	return removed, nil
}
