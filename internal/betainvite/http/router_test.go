package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/metrics"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store/drivers/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type unreachableStore struct {
	store.Store
}

func (unreachableStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestRouter(t *testing.T, st store.Store) (*Router, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics.New(reg).KeyIssued(metrics.KindSingleUse)

	r := NewRouter("v1.2.3", st, reg, slog.Default())
	r.ApplyRoutes()
	return r, reg
}

func newMemoryStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func serve(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLivez(t *testing.T) {
	r, _ := newTestRouter(t, newMemoryStore(t))

	rec := serve(r, "/livez")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "v1.2.3", resp.Version)
	require.Nil(t, resp.Checks)
}

func TestReadyz(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		r, _ := newTestRouter(t, newMemoryStore(t))

		rec := serve(r, "/readyz")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "ok", resp.Status)
		require.Equal(t, "ok", resp.Checks.Database)
	})

	t.Run("database down", func(t *testing.T) {
		r, _ := newTestRouter(t, unreachableStore{})

		rec := serve(r, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "degraded", resp.Status)
		require.Equal(t, "error: connection refused", resp.Checks.Database)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, newMemoryStore(t))

	rec := serve(r, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `betainvite_invitations_issued_total{kind="single_use"} 1`)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	r, _ := newTestRouter(t, newMemoryStore(t))

	require.Equal(t, http.StatusNotFound, serve(r, "/v1/invitations").Code)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/livez", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
