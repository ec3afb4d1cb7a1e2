package postgres

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
	return r.getOrCreate(ctx, owner, defaultRemaining, now, "")
}

func (r *quotasRepo) LockQuota(
	ctx context.Context,
	owner string,
	defaultRemaining int,
	now time.Time,
) (domain.InvitationQuota, error) {
	return r.getOrCreate(ctx, owner, defaultRemaining, now, " FOR UPDATE")
}

func (r *quotasRepo) getOrCreate(
	ctx context.Context,
	owner string,
	defaultRemaining int,
	now time.Time,
	lockClause string,
) (domain.InvitationQuota, error) {
	now = now.UTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO invitation_quotas (owner_id, remaining, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (owner_id) DO NOTHING`,
		owner, defaultRemaining, now,
	); err != nil {
		return domain.InvitationQuota{}, err
	}

	var q domain.InvitationQuota
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id, remaining, created_at, updated_at
		FROM invitation_quotas
		WHERE owner_id = $1`+lockClause, owner,
	).Scan(&q.Owner, &q.Remaining, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return domain.InvitationQuota{}, sqlrow.MapNotFound(err)
	}
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	return q, nil
}

func (r *quotasRepo) DecrementQuota(
	ctx context.Context,
	owner string,
	defaultRemaining int,
	now time.Time,
) (int, error) {
	var remaining int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO invitation_quotas (owner_id, remaining, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (owner_id) DO UPDATE SET
			remaining  = invitation_quotas.remaining - 1,
			updated_at = EXCLUDED.updated_at
		RETURNING remaining`,
		owner, defaultRemaining-1, now.UTC(),
	).Scan(&remaining)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
