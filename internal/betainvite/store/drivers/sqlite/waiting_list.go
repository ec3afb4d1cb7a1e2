package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/sqlrow"
)

type waitingListRepo struct {
	db dbtx
}

func (r *waitingListRepo) CreateEntry(ctx context.Context, e domain.WaitingListEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO waiting_list_entries (id, email, created_at, invited)
		VALUES (?, ?, ?, ?)`,
		e.ID, e.Email, e.CreatedAt.UTC(), e.Invited,
	)
	return mapConstraint(err)
}

func (r *waitingListRepo) GetEntryByEmail(ctx context.Context, email string) (domain.WaitingListEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqlrow.WaitingListColumns+` FROM waiting_list_entries WHERE email = ?`, email)
	return sqlrow.ScanWaitingListEntry(row)
}

func (r *waitingListRepo) ListPendingEntries(ctx context.Context, limit int) ([]domain.WaitingListEntry, error) {
	return r.list(ctx, `
		SELECT `+sqlrow.WaitingListColumns+`
		FROM waiting_list_entries
		WHERE invited = 0
		ORDER BY created_at, id
		LIMIT ?`, limit)
}

func (r *waitingListRepo) ListEntries(ctx context.Context, limit int) ([]domain.WaitingListEntry, error) {
	return r.list(ctx, `
		SELECT `+sqlrow.WaitingListColumns+`
		FROM waiting_list_entries
		ORDER BY created_at, id
		LIMIT ?`, limit)
}

func (r *waitingListRepo) MarkEntryInvited(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE waiting_list_entries
		SET invited = 1, invited_at = ?
		WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sqlrow.MapNotFound(sql.ErrNoRows)
	}
	return nil
}

func (r *waitingListRepo) list(ctx context.Context, query string, args ...any) ([]domain.WaitingListEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WaitingListEntry
	for rows.Next() {
		e, err := sqlrow.ScanWaitingListEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
