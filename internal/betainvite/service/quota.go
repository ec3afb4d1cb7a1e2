package service

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/pkg/slogx"
)

// DefaultInvitationsPerUser is the quota handed to a user on first contact.
const DefaultInvitationsPerUser = 10

// QuotaLedger tracks how many invitations each user may still issue.
//
// Entries are created lazily with InvitationsPerUser. The ledger never
// blocks issuance: once a user runs out the counter keeps going negative.
// Callers that want a hard limit check Remaining first.
type QuotaLedger struct {
	Store              store.Store
	InvitationsPerUser int
	Clock              Clock
}

// Remaining returns the user's counter, creating the entry if needed.
func (q *QuotaLedger) Remaining(ctx context.Context, user string) (int, error) {
	entry, err := q.Store.Quotas().GetOrCreateQuota(ctx, user, q.InvitationsPerUser, q.Clock.now())
	if err != nil {
		slogx.FromContext(ctx).Error("failed to load invitation quota",
			slog.String("user", user),
			slog.Any("error", err),
		)
		return 0, err
	}
	return entry.Remaining, nil
}

// lock takes the user's quota entry for the rest of tx. Concurrent
// transactions for the same user queue behind it.
func (q *QuotaLedger) lock(ctx context.Context, tx store.Tx, user string) error {
	_, err := tx.Quotas().LockQuota(ctx, user, q.InvitationsPerUser, q.Clock.now())
	return err
}

// onKeyIssued charges one invitation to user. It must run on the same
// transaction that created the key.
func (q *QuotaLedger) onKeyIssued(ctx context.Context, tx store.Tx, user string) error {
	remaining, err := tx.Quotas().DecrementQuota(ctx, user, q.InvitationsPerUser, q.Clock.now())
	if err != nil {
		return err
	}

	log := slogx.FromContext(ctx)
	if remaining < 0 {
		log.Info("user issued an invitation past their quota",
			slog.String("user", user),
			slog.Int("remaining", remaining),
		)
	} else {
		log.Debug("invitation quota charged",
			slog.String("user", user),
			slog.Int("remaining", remaining),
		)
	}
	return nil
}
