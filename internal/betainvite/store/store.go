package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories hang off the store so a Tx can hand out the
// same repositories bound to the transaction, which keeps callers from mixing
// transactional and non-transactional writes by accident.
type Store interface {
	InvitationKeys() InvitationKeys
	Quotas() Quotas
	WaitingList() WaitingList

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Inside fn only
	// the repositories of tx may be used.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type InvitationKeys interface {
	// CreateInvitationKey inserts a new key. A duplicate token yields ErrAlreadyExists.
	CreateInvitationKey(ctx context.Context, k domain.InvitationKey) error

	// GetInvitationKey returns the key with the exact token, or ErrNotFound.
	GetInvitationKey(ctx context.Context, key string) (domain.InvitationKey, error)

	// GetLatestMultiUseInvitationKey returns the newest multi-use key issued by issuer.
	GetLatestMultiUseInvitationKey(ctx context.Context, issuer string) (domain.InvitationKey, error)

	// MarkInvitationKeyUsed records the registrant on an unconsumed single-use
	// key. It reports whether a row changed; multi-use and already consumed
	// keys are left alone.
	MarkInvitationKeyUsed(ctx context.Context, key string, registrant string) (bool, error)

	// ListInvitationKeys pages through every key ordered by id, starting after afterID.
	ListInvitationKeys(ctx context.Context, afterID string, limit int) ([]domain.InvitationKey, error)

	// DeleteInvitationKey removes a key. Deleting a missing key is not an error.
	DeleteInvitationKey(ctx context.Context, key string) error
}

type Quotas interface {
	// GetOrCreateQuota returns the owner's ledger entry, inserting it with
	// defaultRemaining first if it does not exist yet.
	GetOrCreateQuota(ctx context.Context, owner string, defaultRemaining int, now time.Time) (domain.InvitationQuota, error)

	// LockQuota is GetOrCreateQuota that also holds a write lock on the
	// owner's entry until the surrounding transaction ends. Per-user
	// read-then-write sequences take it first so they run one at a time.
	LockQuota(ctx context.Context, owner string, defaultRemaining int, now time.Time) (domain.InvitationQuota, error)

	// DecrementQuota atomically subtracts one from the owner's entry, creating
	// it from defaultRemaining if needed, and returns the new value. There is
	// no floor.
	DecrementQuota(ctx context.Context, owner string, defaultRemaining int, now time.Time) (int, error)
}

type WaitingList interface {
	// CreateEntry inserts a new entry. A duplicate email yields ErrAlreadyExists.
	CreateEntry(ctx context.Context, e domain.WaitingListEntry) error

	// GetEntryByEmail returns the entry for email, or ErrNotFound.
	GetEntryByEmail(ctx context.Context, email string) (domain.WaitingListEntry, error)

	// ListPendingEntries returns up to limit uninvited entries, oldest first.
	ListPendingEntries(ctx context.Context, limit int) ([]domain.WaitingListEntry, error)

	// ListEntries returns up to limit entries of any state, oldest first.
	ListEntries(ctx context.Context, limit int) ([]domain.WaitingListEntry, error)

	// MarkEntryInvited flags the entry as invited at the given time.
	MarkEntryInvited(ctx context.Context, id string, at time.Time) error
}
