package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phishshield/shield_agent/internal/types"
)

func readVerdictLines(t *testing.T, dir string) []types.VerdictRecord {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("log files = %v; want exactly one", matches)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var records []types.VerdictRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec types.VerdictRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func TestVerdictWriterAppendsRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := NewVerdictWriter(dir, 8, 1)
	if err != nil {
		t.Fatalf("NewVerdictWriter() error = %v", err)
	}

	first := types.VerdictRecord{
		Timestamp:  time.Now().UTC(),
		TabID:      "tab-1",
		URL:        "https://example.com/login",
		Domain:     "example.com",
		IsPhishing: false,
		Label:      "Safe",
		Source:     types.SourceNavigation,
	}
	second := types.VerdictRecord{
		Timestamp:  time.Now().UTC(),
		URL:        "http://paypa1-login.example/",
		Domain:     "paypa1-login.example",
		IsPhishing: true,
		Label:      "Phishing",
		Source:     types.SourceStatusQuery,
	}

	if err := w.Write(first); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Write(second); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records := readVerdictLines(t, dir)
	if len(records) != 2 {
		t.Fatalf("records = %d; want 2", len(records))
	}
	byURL := make(map[string]types.VerdictRecord, len(records))
	for _, rec := range records {
		byURL[rec.URL] = rec
	}
	if got, ok := byURL[first.URL]; !ok || got.Source != types.SourceNavigation || got.IsPhishing {
		t.Fatalf("stored record for %s = %+v; want the safe navigation verdict", first.URL, got)
	}
	if got, ok := byURL[second.URL]; !ok || !got.IsPhishing || got.Domain != "paypa1-login.example" {
		t.Fatalf("stored record for %s = %+v; want the phishing verdict", second.URL, got)
	}

	wantName := time.Now().UTC().Format("2006-01-02") + ".jsonl"
	if _, err := os.Stat(filepath.Join(dir, wantName)); err != nil {
		t.Fatalf("date-stamped log file %s missing: %v", wantName, err)
	}
}

func TestVerdictWriterFillsMissingTimestamp(t *testing.T) {
	dir := t.TempDir()
	w, err := NewVerdictWriter(dir, 8, 1)
	if err != nil {
		t.Fatalf("NewVerdictWriter() error = %v", err)
	}

	if err := w.Write(types.VerdictRecord{URL: "https://example.com/"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records := readVerdictLines(t, dir)
	if len(records) != 1 {
		t.Fatalf("records = %d; want 1", len(records))
	}
	if records[0].Timestamp.IsZero() {
		t.Fatal("written record has a zero timestamp")
	}
}

func TestVerdictWriterRejectsWritesAfterClose(t *testing.T) {
	w, err := NewVerdictWriter(t.TempDir(), 8, 1)
	if err != nil {
		t.Fatalf("NewVerdictWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := w.Write(types.VerdictRecord{URL: "https://example.com/"}); err == nil {
		t.Fatal("Write() after Close = nil; want error")
	}
}
