package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // the outer store owns the connection

// Ping is a no-op for transactions, the connection is already held.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) InvitationKeys() store.InvitationKeys { return &invitationKeysRepo{db: t.tx} }
func (t *txStore) Quotas() store.Quotas                 { return &quotasRepo{db: t.tx} }
func (t *txStore) WaitingList() store.WaitingList       { return &waitingListRepo{db: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx
