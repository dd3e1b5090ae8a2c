// Package audit records every task and tool event in an append-only JSONL
// log with SHA-256 hash chaining. Each line's prev_hash is the hash of the
// previous line, so truncation or edits anywhere in the file break the chain.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first entry in a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Audit event names.
const (
	EventTaskStarted           = "task_started"
	EventToolCalled            = "tool_called"
	EventToolResult            = "tool_result"
	EventTaskCompleted         = "task_completed"
	EventConfirmationRequested = "confirmation_requested"
	EventConfirmationResolved  = "confirmation_resolved"
)

// Details carries the event-specific fields. Everything is a plain struct
// field so json.Marshal ordering stays deterministic for hashing.
type Details struct {
	Task     string `json:"task,omitempty"`
	Profile  string `json:"profile,omitempty"`
	Skill    string `json:"skill,omitempty"`
	CallID   string `json:"call_id,omitempty"`
	Preview  string `json:"preview,omitempty"`
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`
	OK       *bool  `json:"ok,omitempty"`
	Output   string `json:"output,omitempty"`
	Status   string `json:"status,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

// Entry is one line of the audit log.
type Entry struct {
	Timestamp string  `json:"ts"`
	SessionID string  `json:"session_id"`
	Event     string  `json:"event"`
	Details   Details `json:"details"`
	PrevHash  string  `json:"prev_hash"`
}

// Log is the append-only audit writer. A single mutex serializes writers;
// every entry is fsynced before Record returns.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	notify   func(Entry)
	mu       sync.Mutex
}

// Open opens (or creates) the audit log, recovering the chain tail from the
// last line of an existing file.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := lastLine(path)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			prevHash = HashLine(last)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &Log{path: path, file: file, prevHash: prevHash}, nil
}

func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var last []byte
	for scanner.Scan() {
		last = append(last[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan existing log: %w", err)
	}
	return last, nil
}

// SetNotify installs a callback invoked after each successful Record.
// The runtime uses it to fan entries out on the event bus.
func (l *Log) SetNotify(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Record appends one entry, filling its timestamp and chain link.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	l.prevHash = HashLine(line)

	if l.notify != nil {
		l.notify(entry)
	}
	return nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
