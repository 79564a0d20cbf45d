package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/phishshield/shield_agent/internal/types"
)

// VerdictWriter appends classification outcomes to date-stamped JSONL files.
// Writes are asynchronous; a full buffer drops the record rather than block
// the navigation check that produced it.
type VerdictWriter struct {
	dir         string
	maxSizeMB   int
	writeCh     chan types.VerdictRecord
	done        chan struct{}
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

// NewVerdictWriter creates the writer and starts its background loop.
func NewVerdictWriter(dir string, bufferSize, maxSizeMB int) (*VerdictWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("verdict writer: mkdir %s: %w", dir, err)
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	if maxSizeMB < 1 {
		maxSizeMB = 50
	}

	w := &VerdictWriter{
		dir:       dir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan types.VerdictRecord, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w, nil
}

// Write queues a record for async writing.
func (w *VerdictWriter) Write(record types.VerdictRecord) error {
	select {
	case <-w.done:
		return fmt.Errorf("verdict writer is closed")
	default:
	}

	select {
	case w.writeCh <- record:
		return nil
	case <-w.done:
		return fmt.Errorf("verdict writer is closed")
	default:
		slog.Warn("verdict write buffer full, dropping record", "url", record.URL)
		return fmt.Errorf("buffer full")
	}
}

// Close shuts down the writer and flushes pending records.
func (w *VerdictWriter) Close() error {
	close(w.done)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("verdict writer close timeout, some records may be lost")
			goto done
		default:
			goto done
		}
	}

done:
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *VerdictWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *VerdictWriter) writeRecord(record types.VerdictRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("failed to marshal verdict record", "error", err, "url", record.URL)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := time.Now().UTC().Format("2006-01-02")
	if w.logger == nil || date != w.currentDate {
		w.rotateForDate(date)
	}
	if w.logger == nil {
		return
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("failed to write verdict record", "error", err, "url", record.URL)
	}
}

func (w *VerdictWriter) rotateForDate(date string) {
	if w.logger != nil {
		_ = w.logger.Close()
	}

	filename := filepath.Join(w.dir, date+".jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	w.currentDate = date
	slog.Info("opened verdict log", "file", filename)
}
