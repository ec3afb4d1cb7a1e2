package sqlite

import (
	"context"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/sqlrow"
)

type invitationKeysRepo struct {
	db dbtx
}

func (r *invitationKeysRepo) CreateInvitationKey(ctx context.Context, k domain.InvitationKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invitation_keys (id, token, issued_at, issuer_id, registrant_id, allow_multi_use)
		VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID,
		k.Key,
		k.IssuedAt.UTC(),
		sqlrow.StringNull(k.Issuer),
		sqlrow.StringNull(k.Registrant),
		k.AllowMultiUse,
	)
	return mapConstraint(err)
}

func (r *invitationKeysRepo) GetInvitationKey(ctx context.Context, key string) (domain.InvitationKey, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqlrow.InvitationKeyColumns+` FROM invitation_keys WHERE token = ?`, key)
	return sqlrow.ScanInvitationKey(row)
}

func (r *invitationKeysRepo) GetLatestMultiUseInvitationKey(ctx context.Context, issuer string) (domain.InvitationKey, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqlrow.InvitationKeyColumns+`
		FROM invitation_keys
		WHERE issuer_id = ? AND allow_multi_use = 1
		ORDER BY id DESC
		LIMIT 1`, issuer)
	return sqlrow.ScanInvitationKey(row)
}

func (r *invitationKeysRepo) MarkInvitationKeyUsed(ctx context.Context, key string, registrant string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitation_keys
		SET registrant_id = ?
		WHERE token = ? AND allow_multi_use = 0 AND registrant_id IS NULL`,
		registrant, key,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *invitationKeysRepo) ListInvitationKeys(ctx context.Context, afterID string, limit int) ([]domain.InvitationKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqlrow.InvitationKeyColumns+`
		FROM invitation_keys
		WHERE id > ?
		ORDER BY id
		LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InvitationKey
	for rows.Next() {
		k, err := sqlrow.ScanInvitationKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *invitationKeysRepo) DeleteInvitationKey(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invitation_keys WHERE token = ?`, key)
	return err
}
