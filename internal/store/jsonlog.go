package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/dhcpsentry/dhcpsentry/internal/detect"
)

// JSONLog is an append-only, one-record-per-line JSON log. Every write is
// flushed to disk before Append returns, matching the teacher's
// exclusive-locked append-then-durable-write pattern for its audit trail
// (internal/audit/log.go's append), generalized from a BoltDB Update to a
// raw file write+sync pair since this sink is a flat file, not a KV store.
type JSONLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJSONLog opens (creating if necessary) the log file at path for
// appending.
func OpenJSONLog(path string) (*JSONLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening json log %s: %w", path, err)
	}
	return &JSONLog{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes req as one JSON line and flushes it to disk.
func (l *JSONLog) Append(req *detect.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.enc.Encode(req); err != nil {
		return fmt.Errorf("encoding json log record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("flushing json log: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (l *JSONLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
