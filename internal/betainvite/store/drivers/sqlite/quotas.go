package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/sqlrow"
)

type quotasRepo struct {
	db dbtx
}

func (r *quotasRepo) GetOrCreateQuota(
	ctx context.Context,
	owner string,
	defaultRemaining int,
	now time.Time,
) (domain.InvitationQuota, error) {
	now = now.UTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO invitation_quotas (owner_id, remaining, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id) DO NOTHING`,
		owner, defaultRemaining, now, now,
	); err != nil {
		return domain.InvitationQuota{}, err
	}

	var q domain.InvitationQuota
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id, remaining, created_at, updated_at
		FROM invitation_quotas
		WHERE owner_id = ?`, owner,
	).Scan(&q.Owner, &q.Remaining, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return domain.InvitationQuota{}, sqlrow.MapNotFound(err)
	}
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	return q, nil
}

// LockQuota relies on SQLite having a single writer: the INSERT takes the
// database write lock, which is held until the transaction ends.
func (r *quotasRepo) LockQuota(
	ctx context.Context,
	owner string,
	defaultRemaining int,
	now time.Time,
) (domain.InvitationQuota, error) {
	return r.GetOrCreateQuota(ctx, owner, defaultRemaining, now)
}

func (r *quotasRepo) DecrementQuota(
	ctx context.Context,
	owner string,
	defaultRemaining int,
	now time.Time,
) (int, error) {
	now = now.UTC()

	// One statement: the read-modify-write happens inside SQLite.
	var remaining int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO invitation_quotas (owner_id, remaining, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET
			remaining  = invitation_quotas.remaining - 1,
			updated_at = excluded.updated_at
		RETURNING remaining`,
		owner, defaultRemaining-1, now, now,
	).Scan(&remaining)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
