package approval

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Waiter blocks a task on a confirmation request until someone resolves it.
// Resolution is observed through fsnotify on the pending directory, with a
// slow poll as a fallback for filesystems that drop events.
type Waiter struct {
	store   *Store
	timeout time.Duration
	logger  *slog.Logger
	// OnPending fires after the request file exists, before waiting.
	OnPending func(Request)
}

// NewWaiter creates a waiter over the store. A zero timeout means wait
// until the context expires.
func NewWaiter(store *Store, timeout time.Duration, logger *slog.Logger) *Waiter {
	return &Waiter{
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "approval"),
	}
}

// Await files the request and blocks until it is approved (true), denied or
// expired (false), or the wait times out (false, after marking the request
// denied). One-shot decisions are retired once observed; an approval granted
// with a window keeps answering identical calls until it expires. The error
// return is reserved for infrastructure failures.
func (w *Waiter) Await(ctx context.Context, req Request) (bool, error) {
	if err := w.store.Create(req); err != nil {
		return false, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, fmt.Errorf("approval: watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(w.store.Dir()); err != nil {
		return false, fmt.Errorf("approval: watch %s: %w", w.store.Dir(), err)
	}

	if w.OnPending != nil {
		if stored, err := w.store.Get(req.Key); err == nil {
			w.OnPending(*stored)
		}
	}

	// The file may already be resolved (pre-approved window, racing
	// approver), so check once before waiting.
	if done, approved := w.checkOnce(req.Key); done {
		return approved, nil
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	target := req.Key + ".json"
	poll := time.NewTicker(2 * time.Second)
	defer poll.Stop()

	w.logger.Info("waiting for confirmation", "key", req.Key, "skill", req.Skill)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("confirmation timed out", "key", req.Key)
			if err := w.store.Deny(req.Key); err != nil {
				w.logger.Warn("could not mark expired request denied", "key", req.Key, "error", err)
			}
			w.consume(req.Key)
			return false, nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return false, fmt.Errorf("approval: watcher closed")
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if done, approved := w.checkOnce(req.Key); done {
				return approved, nil
			}
		case err, ok := <-watcher.Errors:
			if ok && err != nil {
				w.logger.Warn("watcher error", "error", err)
			}
		case <-poll.C:
			if done, approved := w.checkOnce(req.Key); done {
				return approved, nil
			}
		}
	}
}

func (w *Waiter) checkOnce(key string) (done, approved bool) {
	status, err := w.store.Check(key)
	if err != nil {
		return false, false
	}
	switch status {
	case StatusApproved:
		w.logger.Info("confirmation approved", "key", key)
		w.consume(key)
		return true, true
	case StatusDenied, StatusExpired:
		w.logger.Info("confirmation refused", "key", key, "status", status)
		w.consume(key)
		return true, false
	default:
		return false, false
	}
}

// consume retires the observed decision. One-shot approvals and denials
// must not linger, or an identical later call would inherit them without
// anyone being asked; approvals with an open grant window stay.
func (w *Waiter) consume(key string) {
	if err := w.store.Consume(key); err != nil {
		w.logger.Warn("could not retire resolved request", "key", key, "error", err)
	}
}
