package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/wardlabs/wardclaw/internal/agent"
	"github.com/wardlabs/wardclaw/internal/approval"
	"github.com/wardlabs/wardclaw/internal/events"
)

// storeGate resolves confirmations through the pending store, so an
// operator approves from another terminal or the HTTP API while the task
// blocks.
type storeGate struct {
	waiter *approval.Waiter
}

func newStoreGate(rt *runtime, logger *slog.Logger) *storeGate {
	timeout := time.Duration(rt.cfg.Gate.TimeoutSecs) * time.Second
	waiter := approval.NewWaiter(rt.approvals, timeout, logger)
	waiter.OnPending = func(req approval.Request) {
		rt.bus.Publish(events.TopicConfirmationPending, req)
		logger.Info("confirmation pending",
			"key", req.Key,
			"preview", req.Preview,
			"hint", "wardclaw approve "+req.Key,
		)
	}
	return &storeGate{waiter: waiter}
}

func (g *storeGate) Confirm(ctx context.Context, c agent.Confirmation) (bool, error) {
	return g.waiter.Await(ctx, approval.Request{
		Key:       confirmKey(c),
		SessionID: c.SessionID,
		Skill:     c.Skill,
		Preview:   c.Preview,
		Reason:    c.Reason,
	})
}

// confirmKey derives a stable filename-safe key for a confirmation, so a
// pre-approved window matches repeats of the same call.
func confirmKey(c agent.Confirmation) string {
	sum := sha256.Sum256([]byte(c.Skill + "\x00" + c.Preview))
	return c.Skill + "-" + hex.EncodeToString(sum[:4])
}
