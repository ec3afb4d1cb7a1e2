package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSingleUseKeyLifecycle(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	k, err := env.invitations.CreateSingleUse(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, k.Key, 32)
	require.Equal(t, "alice", k.Issuer)
	require.False(t, k.AllowMultiUse)
	require.Equal(t, t0, k.IssuedAt)

	ok, err := env.invitations.Validate(ctx, k.Key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, env.invitations.Consume(ctx, k.Key, "bob"))

	ok, err = env.invitations.Validate(ctx, k.Key)
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("registrant is never overwritten", func(t *testing.T) {
		require.NoError(t, env.invitations.Consume(ctx, k.Key, "mallory"))

		got, found, err := env.invitations.Lookup(ctx, k.Key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "bob", got.Registrant)
	})

	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.InvitationsIssued.WithLabelValues(metrics.KindSingleUse)))
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.InvitationsConsumed))
}

func TestMultiUseKeyStaysValidAcrossConsumes(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	k, err := env.invitations.CreateOrReuseMultiUse(ctx, "alice")
	require.NoError(t, err)
	require.True(t, k.AllowMultiUse)

	for _, registrant := range []string{"bob", "carol", "dave"} {
		require.NoError(t, env.invitations.Consume(ctx, k.Key, registrant))

		ok, err := env.invitations.Validate(ctx, k.Key)
		require.NoError(t, err)
		require.True(t, ok)
	}

	got, found, err := env.invitations.Lookup(ctx, k.Key)
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, got.Registrant)
	require.Equal(t, 0.0, testutil.ToFloat64(env.metrics.InvitationsConsumed))

	env.clock.Advance(14 * day)
	ok, err := env.invitations.Validate(ctx, k.Key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidityWindowBoundary(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	k, err := env.invitations.CreateSingleUse(ctx, "")
	require.NoError(t, err)
	require.Equal(t, t0.Add(14*day), env.invitations.ExpiresAt(k))

	env.clock.Set(t0.Add(13 * day))
	ok, err := env.invitations.Validate(ctx, k.Key)
	require.NoError(t, err)
	require.True(t, ok)

	env.clock.Set(t0.Add(14 * day))
	ok, err = env.invitations.Validate(ctx, k.Key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExpiredKeyCanStillBeConsumed(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	k, err := env.invitations.CreateSingleUse(ctx, "")
	require.NoError(t, err)

	env.clock.Advance(30 * day)
	require.NoError(t, env.invitations.Consume(ctx, k.Key, "bob"))

	got, found, err := env.invitations.Lookup(ctx, k.Key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "bob", got.Registrant)
}

func TestLookupUnknownTokens(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"never issued", "0123456789abcdef0123456789abcdef"},
		{"too long", strings.Repeat("a", domain.MaxKeyLength+1)},
		{"sql looking", "' OR 1=1 --"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, found, err := env.invitations.Lookup(ctx, tt.token)
			require.NoError(t, err)
			require.False(t, found)

			ok, err := env.invitations.Validate(ctx, tt.token)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, env.invitations.Consume(ctx, tt.token, "bob"))
		})
	}
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	consumed, err := env.invitations.CreateSingleUse(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, env.invitations.Consume(ctx, consumed.Key, "bob"))

	unused, err := env.invitations.CreateSingleUse(ctx, "")
	require.NoError(t, err)

	multi, err := env.invitations.CreateOrReuseMultiUse(ctx, "alice")
	require.NoError(t, err)

	env.clock.Advance(7 * day)
	fresh, err := env.invitations.CreateSingleUse(ctx, "")
	require.NoError(t, err)

	t.Run("nothing expired yet", func(t *testing.T) {
		deleted, err := env.invitations.SweepExpired(ctx)
		require.NoError(t, err)
		require.Zero(t, deleted)
	})

	// Consumed keys are bookkeeping only and are removed on the same schedule.
	env.clock.Set(t0.Add(14 * day))
	deleted, err := env.invitations.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	for _, k := range []domain.InvitationKey{consumed, unused, multi} {
		_, found, err := env.invitations.Lookup(ctx, k.Key)
		require.NoError(t, err)
		require.False(t, found, "key %s should be swept", k.ID)
	}

	_, found, err := env.invitations.Lookup(ctx, fresh.Key)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, env.invitations.Consume(ctx, consumed.Key, "carol"))
	require.Equal(t, 3.0, testutil.ToFloat64(env.metrics.InvitationsSwept))
}

func TestSweepExpiredPagesThroughManyKeys(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	total := sweepPageSize + 7
	for range total {
		_, err := env.invitations.CreateSingleUse(ctx, "")
		require.NoError(t, err)
	}

	env.clock.Advance(15 * day)
	deleted, err := env.invitations.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, total, deleted)

	keys, err := env.store.InvitationKeys().ListInvitationKeys(ctx, "", 10)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestQuotaChargedPerIssuedKey(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	n, err := env.quotas.Remaining(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 10, n)

	_, err = env.invitations.CreateSingleUse(ctx, "alice")
	require.NoError(t, err)

	n, err = env.quotas.Remaining(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 9, n)

	t.Run("system keys charge nobody", func(t *testing.T) {
		_, err := env.invitations.CreateSingleUse(ctx, "")
		require.NoError(t, err)

		n, err := env.quotas.Remaining(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, 9, n)
	})

	t.Run("first issuance creates the ledger entry", func(t *testing.T) {
		_, err := env.invitations.CreateSingleUse(ctx, "newcomer")
		require.NoError(t, err)

		n, err := env.quotas.Remaining(ctx, "newcomer")
		require.NoError(t, err)
		require.Equal(t, 9, n)
	})
}

func TestQuotaIsNotEnforced(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	for range 3 {
		_, err := env.invitations.CreateSingleUse(ctx, "u")
		require.NoError(t, err)
	}
	n, err := env.quotas.Remaining(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = env.invitations.CreateSingleUse(ctx, "u")
	require.NoError(t, err)

	n, err = env.quotas.Remaining(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, -1, n)
}

func TestConcurrentIssuanceChargesEveryKey(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.invitations.CreateSingleUse(ctx, "alice"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := env.quotas.Remaining(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 10-workers, n)
}

func TestCreateOrReuseMultiUse(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	first, err := env.invitations.CreateOrReuseMultiUse(ctx, "alice")
	require.NoError(t, err)

	env.clock.Advance(13 * day)
	second, err := env.invitations.CreateOrReuseMultiUse(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, first.Key, second.Key)

	n, err := env.quotas.Remaining(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 9, n)

	t.Run("expired key is replaced and charged again", func(t *testing.T) {
		env.clock.Set(t0.Add(14 * day))
		third, err := env.invitations.CreateOrReuseMultiUse(ctx, "alice")
		require.NoError(t, err)
		require.NotEqual(t, first.Key, third.Key)
		require.Equal(t, t0.Add(14*day), third.IssuedAt)

		n, err := env.quotas.Remaining(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, 8, n)

		again, err := env.invitations.CreateOrReuseMultiUse(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, third.Key, again.Key)
	})

	t.Run("single-use keys are never reused", func(t *testing.T) {
		single, err := env.invitations.CreateSingleUse(ctx, "bob")
		require.NoError(t, err)

		multi, err := env.invitations.CreateOrReuseMultiUse(ctx, "bob")
		require.NoError(t, err)
		require.NotEqual(t, single.Key, multi.Key)
	})

	require.Equal(t, 3.0, testutil.ToFloat64(env.metrics.InvitationsIssued.WithLabelValues(metrics.KindMultiUse)))
}

func TestConcurrentCreateOrReuseMultiUseIssuesOneKey(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	const workers = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		keys = map[string]int{}
	)
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := env.invitations.CreateOrReuseMultiUse(ctx, "alice")
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			keys[k.Key]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, keys, 1)

	n, err := env.quotas.Remaining(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 9, n)

	all, err := env.store.InvitationKeys().ListInvitationKeys(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestIssuedAtMatchesStoredValue(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	env.clock.Set(t0.Add(123456789 * time.Nanosecond))

	k, err := env.invitations.CreateSingleUse(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, t0.Add(123456*time.Microsecond), k.IssuedAt)

	got, found, err := env.invitations.Lookup(ctx, k.Key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, k.IssuedAt, got.IssuedAt)

	e, err := env.waitingList.Add(ctx, "a@example.com")
	require.NoError(t, err)

	stored, err := env.store.WaitingList().GetEntryByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, e.CreatedAt, stored.CreatedAt)
}

func TestTokenSourceFailure(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	boom := errors.New("entropy exhausted")
	env.invitations.NewToken = func() (string, error) { return "", boom }

	_, err := env.invitations.CreateSingleUse(ctx, "alice")
	require.ErrorIs(t, err, boom)

	n, err := env.quotas.Remaining(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestDuplicateTokenRollsBackQuota(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	env.invitations.NewToken = func() (string, error) { return "fixed-token", nil }

	_, err := env.invitations.CreateSingleUse(ctx, "alice")
	require.NoError(t, err)

	_, err = env.invitations.CreateSingleUse(ctx, "alice")
	require.Error(t, err)

	n, err := env.quotas.Remaining(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 9, n)
}
