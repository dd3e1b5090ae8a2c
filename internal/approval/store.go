// Package approval implements the asynchronous confirmation boundary.
// Confirmation requests are files in a pending directory; any process with
// access to the directory (the CLI's approve/deny commands, the HTTP API)
// can resolve them, and waiters watch for the resolution.
package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters")
	}
	return nil
}

// Status is a confirmation request's state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Request is one pending confirmation.
type Request struct {
	Key        string     `json:"key"`
	SessionID  string     `json:"session_id"`
	Skill      string     `json:"skill"`
	Preview    string     `json:"preview"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Store manages confirmation request files.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store backed by dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("approval: create directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns ~/.wardclaw/pending.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "wardclaw-pending")
	}
	return filepath.Join(home, ".wardclaw", "pending")
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Create writes a new pending request. Creating an existing key is a no-op
// so retried tool calls reuse the outstanding request.
func (s *Store) Create(req Request) error {
	if err := validateKey(req.Key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(req.Key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	req.Status = StatusPending
	req.CreatedAt = time.Now().UTC()
	return s.writeAtomic(path, req)
}

// Approve resolves a request as approved. A positive duration grants a
// window during which the same key stays approved.
func (s *Store) Approve(key string, duration time.Duration) error {
	return s.resolve(key, StatusApproved, duration)
}

// Deny resolves a request as denied.
func (s *Store) Deny(key string) error {
	return s.resolve(key, StatusDenied, 0)
}

func (s *Store) resolve(key string, status Status, duration time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval: %q not found: %w", key, err)
	}

	req.Status = status
	now := time.Now().UTC()
	req.ResolvedAt = &now
	if duration > 0 {
		exp := now.Add(duration)
		req.ExpiresAt = &exp
	}
	return s.writeAtomic(s.path(key), *req)
}

// Check returns a request's current status, degrading approved-with-window
// requests to expired once their window passes.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("approval: %q not found", key)
	}

	if req.Status == StatusApproved && req.ExpiresAt != nil && time.Now().UTC().After(*req.ExpiresAt) {
		req.Status = StatusExpired
		_ = s.writeAtomic(s.path(key), *req)
		return StatusExpired, nil
	}
	return req.Status, nil
}

// Get returns one request.
func (s *Store) Get(key string) (*Request, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("approval: invalid key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

// List returns every request in the store, pending first, then by age.
func (s *Store) List() ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Request
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		req, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

// Consume retires a resolved request so the next identical call asks again.
// Pending requests are untouched, and approvals whose grant window has not
// passed stay reusable; one-shot approvals, denials, and expired grants are
// removed.
func (s *Store) Consume(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.read(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if req.Status == StatusPending {
		return nil
	}
	if req.Status == StatusApproved && req.ExpiresAt != nil && time.Now().UTC().Before(*req.ExpiresAt) {
		return nil
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Remove deletes a request file.
func (s *Store) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Request, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("approval: parse %s: %w", key, err)
	}
	return &req, nil
}

// writeAtomic writes via a temp file and rename so watchers never observe
// a partially written request.
func (s *Store) writeAtomic(path string, req Request) error {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("approval: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("approval: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("approval: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("approval: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("approval: rename: %w", err)
	}
	return nil
}
