package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/postgres"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:17-alpine"

// TestStoreConformance runs the shared driver suite against a throwaway
// postgres container. Each subtest gets its own database created from a
// migrated template so state never leaks between cases.
func TestStoreConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		postgresImage,
		tcpostgres.WithDatabase("betainvite"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		if os.Getenv("CI") == "" {
			t.Skipf("postgres container unavailable: %v", err)
		}
		require.NoError(t, err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Migrate once, then snapshot so every subtest restores a clean schema.
	st, err := postgres.NewStore(ctx, dsn, postgres.PoolConfig{})
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	require.NoError(t, st.Close())
	require.NoError(t, container.Snapshot(ctx))

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()

		require.NoError(t, container.Restore(ctx))

		st, err := postgres.NewStore(ctx, dsn, postgres.PoolConfig{MaxConns: 8})
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })

		require.NoError(t, st.ApplyMigrations())
		return st
	})
}
