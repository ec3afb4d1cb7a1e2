// Package sqlrow holds the row mapping shared by the database/sql drivers.
package sqlrow

import (
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
)

// Column lists matching ScanInvitationKey and ScanWaitingListEntry.
const (
	InvitationKeyColumns = `id, token, issued_at, issuer_id, registrant_id, allow_multi_use`
	WaitingListColumns   = `id, email, created_at, invited, invited_at`
)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// MapNotFound translates sql.ErrNoRows into store.ErrNotFound.
func MapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func NullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// StringNull stores the empty string as NULL.
func StringNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func ScanInvitationKey(row Scanner) (domain.InvitationKey, error) {
	var (
		k          domain.InvitationKey
		issuedAt   time.Time
		issuer     sql.NullString
		registrant sql.NullString
	)
	if err := row.Scan(&k.ID, &k.Key, &issuedAt, &issuer, &registrant, &k.AllowMultiUse); err != nil {
		return domain.InvitationKey{}, MapNotFound(err)
	}
	k.IssuedAt = issuedAt.UTC()
	k.Issuer = NullString(issuer)
	k.Registrant = NullString(registrant)
	return k, nil
}

func ScanWaitingListEntry(row Scanner) (domain.WaitingListEntry, error) {
	var (
		e         domain.WaitingListEntry
		invitedAt sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.Email, &e.CreatedAt, &e.Invited, &invitedAt); err != nil {
		return domain.WaitingListEntry{}, MapNotFound(err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if invitedAt.Valid {
		t := invitedAt.Time.UTC()
		e.InvitedAt = &t
	}
	return e, nil
}
