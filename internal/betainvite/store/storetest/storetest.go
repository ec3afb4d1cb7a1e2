// Package storetest holds behavioural tests every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/pkg/cryptox"
	"github.com/aussiebroadwan/betainvite/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a migrated, empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InvitationKeys", func(t *testing.T) { testInvitationKeys(t, newStore) })
	t.Run("Quotas", func(t *testing.T) { testQuotas(t, newStore) })
	t.Run("WaitingList", func(t *testing.T) { testWaitingList(t, newStore) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore) })
}

func newKey(issuer string, at time.Time, multi bool) domain.InvitationKey {
	return domain.InvitationKey{
		ID:            idx.NewAt(at).String(),
		Key:           cryptox.MustNewHexKey(),
		IssuedAt:      at,
		Issuer:        issuer,
		AllowMultiUse: multi,
	}
}

func testInvitationKeys(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and get round trip", func(t *testing.T) {
		st := newStore(t)
		k := newKey("user-1", base, false)
		require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))

		got, err := st.InvitationKeys().GetInvitationKey(ctx, k.Key)
		require.NoError(t, err)
		require.Equal(t, k.ID, got.ID)
		require.Equal(t, "user-1", got.Issuer)
		require.Empty(t, got.Registrant)
		require.False(t, got.AllowMultiUse)
		require.WithinDuration(t, base, got.IssuedAt, time.Millisecond)
	})

	t.Run("system issued key has no issuer", func(t *testing.T) {
		st := newStore(t)
		k := newKey("", base, false)
		require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))

		got, err := st.InvitationKeys().GetInvitationKey(ctx, k.Key)
		require.NoError(t, err)
		require.Empty(t, got.Issuer)
	})

	t.Run("missing key is ErrNotFound", func(t *testing.T) {
		st := newStore(t)
		_, err := st.InvitationKeys().GetInvitationKey(ctx, "does-not-exist")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate token is ErrAlreadyExists", func(t *testing.T) {
		st := newStore(t)
		k := newKey("", base, false)
		require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))

		dup := newKey("", base, false)
		dup.Key = k.Key
		err := st.InvitationKeys().CreateInvitationKey(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("latest multi-use key per issuer", func(t *testing.T) {
		st := newStore(t)
		older := newKey("user-1", base, true)
		newer := newKey("user-1", base.Add(time.Hour), true)
		single := newKey("user-1", base.Add(2*time.Hour), false)
		other := newKey("user-2", base.Add(3*time.Hour), true)
		for _, k := range []domain.InvitationKey{older, newer, single, other} {
			require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))
		}

		got, err := st.InvitationKeys().GetLatestMultiUseInvitationKey(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, newer.Key, got.Key)

		_, err = st.InvitationKeys().GetLatestMultiUseInvitationKey(ctx, "user-3")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("mark used sets registrant once", func(t *testing.T) {
		st := newStore(t)
		k := newKey("user-1", base, false)
		require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))

		changed, err := st.InvitationKeys().MarkInvitationKeyUsed(ctx, k.Key, "reg-1")
		require.NoError(t, err)
		require.True(t, changed)

		changed, err = st.InvitationKeys().MarkInvitationKeyUsed(ctx, k.Key, "reg-2")
		require.NoError(t, err)
		require.False(t, changed)

		got, err := st.InvitationKeys().GetInvitationKey(ctx, k.Key)
		require.NoError(t, err)
		require.Equal(t, "reg-1", got.Registrant)
	})

	t.Run("mark used ignores multi-use and missing keys", func(t *testing.T) {
		st := newStore(t)
		k := newKey("user-1", base, true)
		require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))

		changed, err := st.InvitationKeys().MarkInvitationKeyUsed(ctx, k.Key, "reg-1")
		require.NoError(t, err)
		require.False(t, changed)

		got, err := st.InvitationKeys().GetInvitationKey(ctx, k.Key)
		require.NoError(t, err)
		require.Empty(t, got.Registrant)

		changed, err = st.InvitationKeys().MarkInvitationKeyUsed(ctx, "missing", "reg-1")
		require.NoError(t, err)
		require.False(t, changed)
	})

	t.Run("list pages through every key in id order", func(t *testing.T) {
		st := newStore(t)
		var want []string
		for i := range 7 {
			k := newKey("", base.Add(time.Duration(i)*time.Minute), i%2 == 0)
			require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))
			want = append(want, k.Key)
		}

		var got []string
		after := ""
		for {
			page, err := st.InvitationKeys().ListInvitationKeys(ctx, after, 3)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			require.LessOrEqual(t, len(page), 3)
			for _, k := range page {
				got = append(got, k.Key)
			}
			after = page[len(page)-1].ID
		}
		require.Equal(t, want, got)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		st := newStore(t)
		k := newKey("", base, false)
		require.NoError(t, st.InvitationKeys().CreateInvitationKey(ctx, k))

		require.NoError(t, st.InvitationKeys().DeleteInvitationKey(ctx, k.Key))
		require.NoError(t, st.InvitationKeys().DeleteInvitationKey(ctx, k.Key))

		_, err := st.InvitationKeys().GetInvitationKey(ctx, k.Key)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testQuotas(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("get or create applies default once", func(t *testing.T) {
		st := newStore(t)

		q, err := st.Quotas().GetOrCreateQuota(ctx, "user-1", 5, base)
		require.NoError(t, err)
		require.Equal(t, "user-1", q.Owner)
		require.Equal(t, 5, q.Remaining)

		// A different default on a later call must not reset the entry.
		q, err = st.Quotas().GetOrCreateQuota(ctx, "user-1", 99, base.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, 5, q.Remaining)
	})

	t.Run("decrement creates from default", func(t *testing.T) {
		st := newStore(t)

		remaining, err := st.Quotas().DecrementQuota(ctx, "user-1", 3, base)
		require.NoError(t, err)
		require.Equal(t, 2, remaining)

		q, err := st.Quotas().GetOrCreateQuota(ctx, "user-1", 3, base)
		require.NoError(t, err)
		require.Equal(t, 2, q.Remaining)
	})

	t.Run("decrement goes below zero", func(t *testing.T) {
		st := newStore(t)

		var remaining int
		var err error
		for range 3 {
			remaining, err = st.Quotas().DecrementQuota(ctx, "user-1", 1, base)
			require.NoError(t, err)
		}
		require.Equal(t, -2, remaining)
	})

	t.Run("concurrent decrements are not lost", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Quotas().GetOrCreateQuota(ctx, "user-1", 100, base)
		require.NoError(t, err)

		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := st.Quotas().DecrementQuota(ctx, "user-1", 100, base); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		q, err := st.Quotas().GetOrCreateQuota(ctx, "user-1", 100, base)
		require.NoError(t, err)
		require.Equal(t, 100-workers, q.Remaining)
	})

	t.Run("lock creates the entry from default", func(t *testing.T) {
		st := newStore(t)

		err := st.WithTx(ctx, func(tx store.Tx) error {
			q, err := tx.Quotas().LockQuota(ctx, "user-1", 4, base)
			require.NoError(t, err)
			require.Equal(t, 4, q.Remaining)
			return nil
		})
		require.NoError(t, err)

		q, err := st.Quotas().GetOrCreateQuota(ctx, "user-1", 99, base)
		require.NoError(t, err)
		require.Equal(t, 4, q.Remaining)
	})

	// Each worker checks for a multi-use key and only issues one when none
	// exists. Holding the lock across check and insert leaves exactly one.
	t.Run("lock serializes check then create", func(t *testing.T) {
		st := newStore(t)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := st.WithTx(ctx, func(tx store.Tx) error {
					if _, err := tx.Quotas().LockQuota(ctx, "user-1", 10, base); err != nil {
						return err
					}
					_, err := tx.InvitationKeys().GetLatestMultiUseInvitationKey(ctx, "user-1")
					if err == nil {
						return nil
					}
					if !errors.Is(err, store.ErrNotFound) {
						return err
					}
					if err := tx.InvitationKeys().CreateInvitationKey(ctx, newKey("user-1", base, true)); err != nil {
						return err
					}
					_, err = tx.Quotas().DecrementQuota(ctx, "user-1", 10, base)
					return err
				})
				if err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		keys, err := st.InvitationKeys().ListInvitationKeys(ctx, "", 100)
		require.NoError(t, err)
		require.Len(t, keys, 1)

		q, err := st.Quotas().GetOrCreateQuota(ctx, "user-1", 10, base)
		require.NoError(t, err)
		require.Equal(t, 9, q.Remaining)
	})
}

func testWaitingList(t *testing.T, newStore Factory) {
	ctx := context.Background()

	newEntry := func(email string, at time.Time) domain.WaitingListEntry {
		return domain.WaitingListEntry{ID: idx.NewAt(at).String(), Email: email, CreatedAt: at}
	}

	t.Run("create and get by email", func(t *testing.T) {
		st := newStore(t)
		e := newEntry("a@example.com", base)
		require.NoError(t, st.WaitingList().CreateEntry(ctx, e))

		got, err := st.WaitingList().GetEntryByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		require.Equal(t, e.ID, got.ID)
		require.False(t, got.Invited)
		require.Nil(t, got.InvitedAt)

		_, err = st.WaitingList().GetEntryByEmail(ctx, "b@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email is ErrAlreadyExists", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.WaitingList().CreateEntry(ctx, newEntry("a@example.com", base)))

		err := st.WaitingList().CreateEntry(ctx, newEntry("a@example.com", base.Add(time.Minute)))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("pending entries oldest first", func(t *testing.T) {
		st := newStore(t)
		emails := []string{"c@example.com", "a@example.com", "b@example.com"}
		for i, email := range emails {
			require.NoError(t, st.WaitingList().CreateEntry(ctx, newEntry(email, base.Add(time.Duration(i)*time.Minute))))
		}

		first, err := st.WaitingList().GetEntryByEmail(ctx, "c@example.com")
		require.NoError(t, err)
		require.NoError(t, st.WaitingList().MarkEntryInvited(ctx, first.ID, base.Add(time.Hour)))

		pending, err := st.WaitingList().ListPendingEntries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		require.Equal(t, "a@example.com", pending[0].Email)
		require.Equal(t, "b@example.com", pending[1].Email)

		limited, err := st.WaitingList().ListPendingEntries(ctx, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)

		all, err := st.WaitingList().ListEntries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, "c@example.com", all[0].Email)
		require.True(t, all[0].Invited)
		require.NotNil(t, all[0].InvitedAt)
	})

	t.Run("mark invited on missing entry is ErrNotFound", func(t *testing.T) {
		st := newStore(t)
		err := st.WaitingList().MarkEntryInvited(ctx, idx.New().String(), base)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testTransactions(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("rollback discards writes", func(t *testing.T) {
		st := newStore(t)
		k := newKey("user-1", base, false)

		boom := fmt.Errorf("boom")
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.InvitationKeys().CreateInvitationKey(ctx, k); err != nil {
				return err
			}
			if _, err := tx.Quotas().DecrementQuota(ctx, "user-1", 10, base); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = st.InvitationKeys().GetInvitationKey(ctx, k.Key)
		require.ErrorIs(t, err, store.ErrNotFound)

		q, err := st.Quotas().GetOrCreateQuota(ctx, "user-1", 10, base)
		require.NoError(t, err)
		require.Equal(t, 10, q.Remaining)
	})

	t.Run("commit keeps writes", func(t *testing.T) {
		st := newStore(t)
		k := newKey("user-1", base, false)

		err := st.WithTx(ctx, func(tx store.Tx) error {
			return tx.InvitationKeys().CreateInvitationKey(ctx, k)
		})
		require.NoError(t, err)

		_, err = st.InvitationKeys().GetInvitationKey(ctx, k.Key)
		require.NoError(t, err)
	})

	t.Run("nested transactions are refused", func(t *testing.T) {
		st := newStore(t)
		err := st.WithTx(ctx, func(tx store.Tx) error {
			return tx.WithTx(ctx, func(store.Tx) error { return nil })
		})
		require.Error(t, err)
	})

	t.Run("ping", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Ping(ctx))
	})
}
